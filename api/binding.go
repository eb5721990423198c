package api

import (
	"reflect"
	"strings"
	"sync"

	"github.com/Aidin1998/pincex_clob/api/responses"
	"github.com/Aidin1998/pincex_clob/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"
)

var fieldNamesOnce sync.Once

// useJSONFieldNames makes binding errors name fields the way clients send them.
func useJSONFieldNames() {
	fieldNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*playground.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bind decodes the JSON body into req, answering 400 with one entry per
// failed field when validation rejects it.
func bind(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	var fields playground.ValidationErrors
	if errors.As(err, &fields) {
		responses.BadRequest(c, "request validation failed", validationErrors(fields)...)
		return false
	}
	responses.BadRequest(c, err.Error())
	return false
}

func validationErrors(fields playground.ValidationErrors) []errors.ValidationError {
	out := make([]errors.ValidationError, 0, len(fields))
	for _, fe := range fields {
		msg := "failed on " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out = append(out, errors.ValidationError{
			Field:   fe.Field(),
			Value:   fe.Value(),
			Message: msg,
			Code:    fe.Tag(),
		})
	}
	return out
}
