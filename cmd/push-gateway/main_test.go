// cmd/push-gateway/main_test.go
package main

import (
	"context"
	"sync"
	"testing"

	"tuanbuy/internal/pkg/logger"
)

// TestHubDeliverDuringReconnect 让同一用户持续重连，同时多路并发投递。
// 重连会关闭旧连接的 send 通道，投递必须与之互斥，否则向已关闭
// 通道发送会直接打崩进程。
func TestHubDeliverDuringReconnect(t *testing.T) {
	logger.Init("error", false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newHub()
	go hub.run(ctx)

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 2000; i++ {
			c := &Client{hub: hub, send: make(chan []byte, 1), userID: 7}
			hub.register <- c
			// 排空通道，扮演 writePump；通道被重连关闭后退出
			go func(ch chan []byte) {
				for range ch {
				}
			}(c.send)
		}
	}()

	payload := []byte(`{"user_id":7,"type":"GROUP_SUCCEEDED"}`)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					hub.deliver(7, payload)
				}
			}
		}()
	}
	wg.Wait()
}

// TestHubUnregisterOnlyRemovesCurrent 重连后旧连接的注销不得影响
// 新连接的注册表项。
func TestHubUnregisterOnlyRemovesCurrent(t *testing.T) {
	logger.Init("error", false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newHub()
	go hub.run(ctx)

	first := &Client{hub: hub, send: make(chan []byte, 1), userID: 9}
	hub.register <- first
	second := &Client{hub: hub, send: make(chan []byte, 1), userID: 9}
	hub.register <- second

	// 旧连接的 readPump 退出时会尝试注销自己
	hub.unregister <- first

	hub.deliver(9, []byte(`{"user_id":9}`))
	select {
	case <-second.send:
	default:
		t.Fatal("current connection must keep receiving after the old one unregisters")
	}
}
