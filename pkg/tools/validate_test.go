package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateInputAccepts(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	assert.NoError(t, ValidateInput(tool, `{"message":"hi"}`))
}

func TestValidateInputRejectsMissingRequiredField(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	assert.Error(t, ValidateInput(tool, `{}`))
}

func TestValidateInputRejectsUnknownField(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	assert.Error(t, ValidateInput(tool, `{"message":"hi","surprise":true}`))
}

func TestValidateInputRejectsWrongType(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	assert.Error(t, ValidateInput(tool, `{"message":42}`))
}

func TestValidateInputRejectsMalformedJSON(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	assert.Error(t, ValidateInput(tool, `{"message":`))
}

func TestValidateInputRejectsNonObject(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	assert.Error(t, ValidateInput(tool, `"just a string"`))
}
