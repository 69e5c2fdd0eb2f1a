package httpapi

import "github.com/gin-gonic/gin"

const (
	jsonKeyError   = "error"
	jsonKeyMessage = "message"

	errorValueInvalidJSON          = "invalid_json"
	errorValueMissingFields        = "missing_fields"
	errorValueInvalidRequest       = "invalid_request"
	errorValueUnauthorized         = "unauthorized"
	errorValueForbidden            = "forbidden"
	errorValueNotFound             = "not_found"
	errorValueRateLimited          = "rate_limited"
	errorValuePaymentRequired      = "payment_required"
	errorValueUpstreamFailed       = "upstream_failed"
	errorValueUpdateFailed         = "update_failed"
	errorValueQueryFailed          = "query_failed"
	errorValueInvalidSubdomain     = "invalid_subdomain"
	errorValueSubdomainUnavailable = "subdomain_unavailable"
	errorValueCollaboratorExists   = "collaborator_exists"
	errorValueNothingToSnapshot    = "nothing_to_snapshot"
	errorValueValidation           = "validation_failed"

	messageInvalidJSON          = "تعذّر قراءة الطلب. تأكد من صحة البيانات المرسلة."
	messageMissingFields        = "بعض الحقول المطلوبة مفقودة."
	messageInvalidMessages      = "المحادثة فارغة أو تحتوي على رسائل غير صالحة."
	messageUnauthorized         = "يجب تسجيل الدخول للمتابعة."
	messageForbidden            = "ليست لديك صلاحية لتنفيذ هذا الإجراء."
	messageProjectNotFound      = "المشروع غير موجود."
	messageVersionNotFound      = "النسخة غير موجودة."
	messageCollaboratorNotFound = "المتعاون غير موجود."
	messageRateLimited          = "تم تجاوز حد الطلبات، يرجى المحاولة بعد قليل."
	messagePaymentRequired      = "يرجى إضافة رصيد لمتابعة استخدام الذكاء الاصطناعي."
	messageUpstreamFailed       = "حدث خطأ أثناء التواصل مع الذكاء الاصطناعي."
	messageUpdateFailed         = "فشل تحديث المشروع."
	messageQueryFailed          = "حدث خطأ غير متوقع، يرجى المحاولة لاحقًا."
	messageInvalidSubdomain     = "اسم النطاق الفرعي غير صالح."
	messageSubdomainUnavailable = "تعذّر حجز نطاق فرعي، يرجى اختيار اسم آخر."
	messageCollaboratorExists   = "هذا البريد مدعو بالفعل إلى المشروع."
	messageNothingToSnapshot    = "لا يوجد محتوى لحفظه كنسخة."
	messageValidationFailed     = "البيانات المرسلة غير صالحة."
)

// errorBodyBuilder shapes an error response. The serverless functions answer {"error": message}; the project
// API answers {"error": code, "message": message}.
type errorBodyBuilder func(code string, message string) gin.H

func functionErrorBody(_ string, message string) gin.H {
	return gin.H{jsonKeyError: message}
}

func apiErrorBody(code string, message string) gin.H {
	return gin.H{jsonKeyError: code, jsonKeyMessage: message}
}
