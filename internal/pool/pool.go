// Package pool recycles request and response envelopes on the chat path,
// the one endpoint hot enough for allocation churn to show.
package pool

import (
	"sync"

	"github.com/blueberrycongee/inferd/pkg/types"
)

var (
	requestPool = sync.Pool{
		New: func() any {
			return new(types.ChatRequest)
		},
	}

	responsePool = sync.Pool{
		New: func() any {
			return new(types.ChatResponse)
		},
	}
)

// GetChatRequest gets a ChatRequest from the pool.
func GetChatRequest() *types.ChatRequest {
	return requestPool.Get().(*types.ChatRequest)
}

// PutChatRequest resets the request and returns it to the pool.
func PutChatRequest(req *types.ChatRequest) {
	req.Reset()
	requestPool.Put(req)
}

// GetChatResponse gets a ChatResponse from the pool.
func GetChatResponse() *types.ChatResponse {
	return responsePool.Get().(*types.ChatResponse)
}

// PutChatResponse resets the response and returns it to the pool.
func PutChatResponse(resp *types.ChatResponse) {
	resp.Reset()
	responsePool.Put(resp)
}
