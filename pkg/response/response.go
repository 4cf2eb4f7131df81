package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = 0
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeServerError  = 500
)

// Business error codes. The webhook endpoint never uses the signature code in
// its response body; verification failures are reported as a bare param error
// so the response does not reveal which check failed.
const (
	CodeInvalidArgument     = 1001
	CodeInsufficientFunds   = 1002
	CodeTransactionNotFound = 1003
	CodeInvalidState        = 1004
	CodeSignatureInvalid    = 1005
	CodeGatewayError        = 1006
	CodeWalletNotFound      = 1007
	CodeWalletInactive      = 1008
	CodeRefundFailed        = 1009
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
