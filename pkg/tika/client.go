// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
// 它是文本抽取协作方：引擎自身不解析任何文件格式。
package tika

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"originality-go/internal/config"
	"path/filepath"
	"strconv"
	"strings"
)

// Extracted 是抽取协作方向引擎提供的结果。
type Extracted struct {
	Text      string
	WordCount int
	PageCount int
}

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
	client    *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{serverURL: cfg.ServerURL, client: http.DefaultClient}
}

// Extract 提取文本并获取结构化计数。
// 词数从抽取文本统计；页数来自 Tika 元数据，缺失时按每页约 300 词估算。
func (c *Client) Extract(ctx context.Context, data []byte, fileName string) (*Extracted, error) {
	contentType := detectMimeType(fileName)

	text, err := c.extractText(ctx, data, contentType)
	if err != nil {
		return nil, err
	}

	wordCount := len(strings.Fields(text))

	pageCount, err := c.extractPageCount(ctx, data, contentType)
	if err != nil || pageCount <= 0 {
		pageCount = estimatePages(wordCount)
	}

	return &Extracted{Text: text, WordCount: wordCount, PageCount: pageCount}, nil
}

// extractText 调用 /tika 端点获取纯文本。
func (c *Client) extractText(ctx context.Context, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "PUT", c.serverURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return buf.String(), nil
}

// extractPageCount 调用 /meta 端点读取页数元数据（xmpTPg:NPages 或 meta:page-count）。
func (c *Client) extractPageCount(ctx context.Context, data []byte, contentType string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "PUT", c.serverURL+"/meta", bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("Tika meta 返回状态码 %d", resp.StatusCode)
	}

	var meta map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return 0, err
	}

	for _, key := range []string{"xmpTPg:NPages", "meta:page-count", "Page-Count"} {
		if v, ok := meta[key]; ok {
			switch n := v.(type) {
			case string:
				if parsed, err := strconv.Atoi(n); err == nil {
					return parsed, nil
				}
			case float64:
				return int(n), nil
			}
		}
	}
	return 0, nil
}

// estimatePages 按每页约 300 词估算页数，至少一页。
func estimatePages(wordCount int) int {
	pages := (wordCount + 299) / 300
	if pages < 1 {
		pages = 1
	}
	return pages
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
