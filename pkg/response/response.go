package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = "OK"
	CodeParamError   = "VALIDATION"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "BUSY"
	CodeServerError  = "INTERNAL"
	CodeIntegrity    = "INTEGRITY"
)

// CodeRateNotConfigured 费率未配置，Reason 区分 NO_WEIGHT_SLAB / NO_DEFAULT
const CodeRateNotConfigured = "RATE_NOT_CONFIGURED"

type Response struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Reason    string      `json:"reason,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      CodeSuccess,
		Message:   "success",
		RequestID: requestID(c),
		Data:      data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:      CodeSuccess,
		Message:   "success",
		RequestID: requestID(c),
		Data:      data,
	})
}

func Error(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:      code,
		Message:   message,
		RequestID: requestID(c),
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, CodeForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, CodeConflict, message)
}

func IntegrityError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeIntegrity, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}

// RateNotConfigured 无法定价是正常的业务结果，按 404 返回
func RateNotConfigured(c *gin.Context, reason, message string) {
	c.AbortWithStatusJSON(http.StatusNotFound, Response{
		Code:      CodeRateNotConfigured,
		Message:   message,
		Reason:    reason,
		RequestID: requestID(c),
	})
}
