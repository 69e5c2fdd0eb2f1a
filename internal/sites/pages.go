package sites

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"

	"github.com/MarkoPoloResearchLab/sitebuilder/pkg/footer"
)

// PageKind selects an error page.
type PageKind string

const (
	PageMissingSubdomain PageKind = "missing_subdomain"
	PageNotFound         PageKind = "not_found"
	PageFailure          PageKind = "failure"

	homeLinkLabel    = "العودة إلى الصفحة الرئيسية"
	footerPrefixText = "صُنع باستخدام منشئ المواقع بالذكاء الاصطناعي"
	footerElementID  = "site-footer"
	footerBaseClass  = "site-footer"

	// fallbackErrorPage is served when the template itself cannot render.
	fallbackErrorPage = `<!DOCTYPE html><html lang="ar" dir="rtl"><head><meta charset="utf-8"><title>حدث خطأ</title></head><body><h1>حدث خطأ</h1><a href="/">العودة إلى الصفحة الرئيسية</a></body></html>`
)

//go:embed templates/error_page.tmpl
var errorPageTemplateHTML string

var errorPageTemplate = template.Must(template.New("error_page").Option("missingkey=error").Parse(errorPageTemplateHTML))

type pageCopy struct {
	status      int
	title       string
	description string
}

var pageCopies = map[PageKind]pageCopy{
	PageMissingSubdomain: {
		status:      http.StatusBadRequest,
		title:       "الموقع غير موجود",
		description: "لم يتم تحديد عنوان الموقع المطلوب. تأكد من الرابط وحاول مرة أخرى.",
	},
	PageNotFound: {
		status:      http.StatusNotFound,
		title:       "الموقع غير موجود",
		description: "لم نتمكن من العثور على هذا الموقع. ربما لم يُنشر بعد أو تم إيقاف نشره.",
	},
	PageFailure: {
		status:      http.StatusInternalServerError,
		title:       "حدث خطأ",
		description: "حدث خطأ غير متوقع أثناء تحميل الموقع. يرجى المحاولة لاحقًا.",
	},
}

type errorPageData struct {
	Title       string
	Description string
	HomeURL     string
	HomeLabel   string
	Footer      template.HTML
}

// PageRenderer renders the Arabic error pages shown to site visitors.
type PageRenderer struct {
	homeURL string
	footer  template.HTML
}

// NewPageRenderer prepares the shared footer once.
func NewPageRenderer(homeURL string) (*PageRenderer, error) {
	if homeURL == "" {
		homeURL = "/"
	}
	renderedFooter, err := footer.Render(footer.Config{
		ElementID:     footerElementID,
		BaseClass:     footerBaseClass,
		PrefixText:    footerPrefixText,
		HomeLinkHref:  homeURL,
		HomeLinkLabel: homeLinkLabel,
	})
	if err != nil {
		return nil, err
	}
	return &PageRenderer{homeURL: homeURL, footer: renderedFooter}, nil
}

// Render returns the status code and markup of an error page.
func (renderer *PageRenderer) Render(kind PageKind) (int, []byte) {
	content, known := pageCopies[kind]
	if !known {
		content = pageCopies[PageFailure]
	}
	var buffer bytes.Buffer
	err := errorPageTemplate.Execute(&buffer, errorPageData{
		Title:       content.title,
		Description: content.description,
		HomeURL:     renderer.homeURL,
		HomeLabel:   homeLinkLabel,
		Footer:      renderer.footer,
	})
	if err != nil {
		return content.status, []byte(fallbackErrorPage)
	}
	return content.status, buffer.Bytes()
}
