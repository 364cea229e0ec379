package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"navcog-poi/model"
)

// maxBodySize 单次响应最大读取量
const maxBodySize = 32 << 20

// HTTP 从远程服务获取 GeoJSON
// 请求形如 GET <URL>?lat=..&lng=..&dist=..[&floor=..]
type HTTP struct {
	URL    string
	Radius float64
	Client *http.Client
}

// NewHTTP 创建带超时的 HTTP 数据源
func NewHTTP(rawURL string, radius float64, timeout time.Duration) *HTTP {
	return &HTTP{URL: rawURL, Radius: radius, Client: &http.Client{Timeout: timeout}}
}

func (h *HTTP) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

// FetchPOIs 实现 registry.DataSource
func (h *HTTP) FetchPOIs(ctx context.Context, center model.Location) ([]model.POI, error) {
	u, err := url.Parse(h.URL)
	if err != nil {
		return nil, fmt.Errorf("无效的数据源地址: %w", err)
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(center.Lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(center.Lng, 'f', -1, 64))
	if h.Radius > 0 {
		q.Set("dist", strconv.FormatFloat(h.Radius, 'f', -1, 64))
	}
	if center.HasFloor {
		q.Set("floor", strconv.FormatFloat(center.Floor, 'f', -1, 64))
	}
	u.RawQuery = q.Encode()

	ds, err := h.get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return ds.POIs, nil
}

// FetchEdges 实现 EdgeSource, 请求不带查询参数
func (h *HTTP) FetchEdges(ctx context.Context) ([]model.Edge, error) {
	ds, err := h.get(ctx, h.URL)
	if err != nil {
		return nil, err
	}
	return ds.Edges, nil
}

func (h *HTTP) get(ctx context.Context, target string) (*Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := h.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求数据源失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("数据源返回状态 %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return Decode(data)
}
