package handler

import (
	"io"
	"sync"

	"navcog-poi/model"
	"navcog-poi/registry"

	"github.com/gin-gonic/gin"
)

// 事件类型
const (
	EventLoadStarted = "load_started"
	EventPOIsLoaded  = "pois_loaded"
	EventPOIChanged  = "poi_changed"
	EventInfoRequest = "info_request"
)

// Event 推送给订阅者的事件
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// InfoRequest 补充信息请求事件的内容, 由客户端负责获取
type InfoRequest struct {
	InfoType string         `json:"info_type"`
	POI      model.POI      `json:"poi"`
	At       model.Location `json:"at"`
	Options  map[string]any `json:"options,omitempty"`
}

// Hub 实现 registry.Observer, 把通知广播给所有 SSE 订阅者
// 订阅者处理不过来时丢弃事件, 不阻塞 Registry
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewHub 创建事件中心, buffer 为每个订阅者的缓冲大小
func NewHub(buffer int) *Hub {
	return &Hub{subs: make(map[chan Event]struct{}), buffer: buffer}
}

// Subscribe 订阅事件, 返回取消函数
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) DidStartLoading() {
	h.publish(Event{Type: EventLoadStarted})
}

func (h *Hub) DidPOIsLoaded(pois []model.POI) {
	h.publish(Event{Type: EventPOIsLoaded, Data: gin.H{"count": len(pois), "pois": pois}})
}

func (h *Hub) RequestInfo(infoType string, poi model.POI, at model.Location, options map[string]any) {
	h.publish(Event{Type: EventInfoRequest, Data: InfoRequest{InfoType: infoType, POI: poi, At: at, Options: options}})
}

func (h *Hub) DidPOIChange(change registry.Change) {
	h.publish(Event{Type: EventPOIChanged, Data: change})
}

// Stream SSE 接口, 连接断开时退订
func (h *Hub) Stream(c *gin.Context) {
	events, cancel := h.Subscribe()
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
