package chat

import "strings"

const (
	systemInstructionContract = `أنت مساعد متخصص في بناء المواقع الإلكترونية. تتحدث مع المستخدم باللغة العربية وتبني له موقعًا كاملًا بلغة HTML و CSS.

You must answer with a single JSON object and nothing else:
{"message": "<short Arabic status text for the user>", "html": "<complete HTML document>"}

Rules:
- "message" is always present and written in Arabic.
- "html" is a complete standalone document starting with <!DOCTYPE html>, with inline CSS, dir="rtl" and lang="ar" unless the user asks otherwise.
- Omit "html" when the user's turn does not require a change to the site.
- Do not wrap the JSON in prose.`

	projectDescriptionHeading = "وصف المشروع (Project description):"
	previousHTMLHeading       = "HTML الحالي للموقع (current site HTML). Modify it instead of starting over:"
)

// BuildSystemInstruction returns the fixed reply contract, extended with the project description when one is known.
func BuildSystemInstruction(projectDescription string) string {
	description := strings.TrimSpace(projectDescription)
	if description == "" {
		return systemInstructionContract
	}
	var builder strings.Builder
	builder.WriteString(systemInstructionContract)
	builder.WriteString("\n\n")
	builder.WriteString(projectDescriptionHeading)
	builder.WriteString("\n")
	builder.WriteString(description)
	return builder.String()
}

func buildPreviousHTMLContext(previousHTML string) string {
	return previousHTMLHeading + "\n" + previousHTML
}
