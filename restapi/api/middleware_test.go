package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/danielpaulus/go-usbmux/restapi/api"
	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(fakeDeviceMiddleware())
	r.Use(api.LimitNumClientsUDID())
	return r
}

func fakeDeviceMiddleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		context.Set(api.DEVICE_KEY, usbmux.DeviceAttachedInfo{Identifier: "abcdefgh"})
	}
}

func TestEnsureConcurrencyLimited(t *testing.T) {
	r := getRouter()
	unsafeCounter := 0

	// Without the concurrency limiting middleware
	// this will not return all possible values for the counter.
	r.GET("/", func(c *gin.Context) {
		unsafeCounter++
		time.Sleep(time.Millisecond)
		c.JSON(http.StatusOK, gin.H{"v": unsafeCounter})
	})

	var mu sync.Mutex
	values := map[string]bool{}
	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/", nil)
			r.ServeHTTP(w, req)
			result := map[string]interface{}{}
			_ = json.Unmarshal(w.Body.Bytes(), &result)
			key := fmt.Sprintf("%v", result["v"])
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, values[key], "counter value %s seen twice", key)
			values[key] = true
		}()
	}
	wg.Wait()
	assert.Len(t, values, 5)
}

func TestStreamingHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(api.StreamingHeaderMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
}
