package request

import (
	"context"
	"net/http"
	"strings"
)

type Context struct {
	request        *http.Request
	responseWriter http.ResponseWriter

	endpoint      string
	clientAddress string

	credentialId string
	tier         string

	queryParams map[string]string
}

func NewContext(request *http.Request, response http.ResponseWriter, endpoint string, clientAddress string) *Context {
	return &Context{
		request:        request,
		responseWriter: response,
		endpoint:       endpoint,
		clientAddress:  clientAddress,
	}
}

func (c *Context) Request() *http.Request {
	return c.request
}

func (c *Context) ResponseWriter() http.ResponseWriter {
	return c.responseWriter
}

func (c *Context) SetResponseWriter(writer http.ResponseWriter) {
	c.responseWriter = writer
}

func (c *Context) Endpoint() string {
	return c.endpoint
}

func (c *Context) ClientAddress() string {
	return c.clientAddress
}

func (c *Context) SetCredential(credentialId string, tier string) {
	c.credentialId = credentialId
	c.tier = tier
}

func (c *Context) CredentialId() string {
	return c.credentialId
}

func (c *Context) Tier() string {
	return c.tier
}

func (c *Context) Context() context.Context {
	return c.request.Context()
}

func (c *Context) SetContext(ctx context.Context) {
	c.request = c.request.WithContext(ctx)
}

func (c *Context) Param(name string) string {
	value := c.request.Header.Get(name)
	if value != "" {
		return strings.TrimSpace(value)
	}

	if c.queryParams == nil {
		query := c.request.URL.Query()
		c.queryParams = map[string]string{}
		for key, values := range query {
			if len(values) == 0 {
				continue
			}
			c.queryParams[strings.ToLower(key)] = values[0]
		}
	}
	value = c.queryParams[strings.ToLower(name)]

	return strings.TrimSpace(value)
}
