package entities

import (
	"testing"

	"dicom-annotations/constants"

	"github.com/stretchr/testify/assert"
)

func TestNewResponse(t *testing.T) {
	resp := NewResponse()
	assert.Equal(t, constants.ServerOK, resp.ErrorCode)
	assert.Greater(t, resp.ServerTime, int64(0))
	assert.Nil(t, resp.Data)
}

func TestResponseString(t *testing.T) {
	{
		resp := Response{}
		assert.Equal(t, "{\"error_code\":0,\"server_time\":0}", resp.String())
	}
	{
		resp := Response{Count: 2, Data: []string{"a", "b"}}
		assert.Equal(t, "{\"error_code\":0,\"server_time\":0,\"count\":2,\"data\":[\"a\",\"b\"]}", resp.String())
	}
}
