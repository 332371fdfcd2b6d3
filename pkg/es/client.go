// Package es 提供了与 Elasticsearch 交互的客户端功能。
// Elasticsearch 在这里扮演向量相似检索协作方：它只负责近似候选召回，
// 最终判定永远由混合打分器重打分得出。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"originality-go/internal/config"
	"originality-go/internal/model"
	"originality-go/pkg/log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName, dims)
}

// createIndexIfNotExists 检查语料库索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string, dims int) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 语料库索引结构：稠密向量走 cosine，结构化字段用于候选预过滤，
	// batch_id 用于排除同批次刚插入的孪生文档
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"entry_id": { "type": "long" },
				"content_hash": { "type": "keyword" },
				"file_name": { "type": "keyword" },
				"category": { "type": "keyword" },
				"batch_id": { "type": "keyword" },
				"keywords": { "type": "keyword" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"word_count": { "type": "integer" },
				"page_count": { "type": "integer" }
			}
		}
	}`, dims)

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// CandidateQuery 是候选检索请求：向量 + 关键词 + 相似度下限 + 结构化过滤。
type CandidateQuery struct {
	Embedding []float32
	Keywords  []string
	Category  string
	// ExcludeBatchID 排除本批次刚入库的条目，避免文档匹配到自己的孪生。
	ExcludeBatchID string
	WordCount      int
	PageCount      int
	MaxCandidates  int
	// SimilarityFloor 是 kNN 召回的相似度下限，远低于标记阈值，
	// 只用来剪掉明显无关的候选，漏报控制仍由重打分阶段负责。
	SimilarityFloor float64
}

// Candidate 是一条候选召回结果，携带重打分所需的完整指纹字段。
// RawScore 是索引自身的近似分数，仅在无法重打分时降级使用。
type Candidate struct {
	Doc      model.EsCorpusDocument
	RawScore float64
}

// Searcher 是对向量检索协作方的依赖面。
type Searcher interface {
	SearchCandidates(ctx context.Context, query CandidateQuery) ([]Candidate, error)
}

// Indexer 把语料库条目写入向量索引。
type Indexer interface {
	IndexEntry(ctx context.Context, doc model.EsCorpusDocument) error
}

// Client 是 Searcher/Indexer 的 Elasticsearch 实现。
type Client struct {
	indexName string
}

// NewClient 创建绑定到配置索引的客户端。
func NewClient(cfg config.ElasticsearchConfig) *Client {
	return &Client{indexName: cfg.IndexName}
}

// IndexEntry 将单个语料库条目索引到 Elasticsearch。
func (c *Client) IndexEntry(ctx context.Context, doc model.EsCorpusDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: fmt.Sprintf("%d", doc.EntryID),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引语料条目到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index corpus entry")
	}

	return nil
}

// SearchCandidates 执行 kNN 候选检索：类别过滤 + 词数/页数范围预过滤 +
// 同批次排除，关键词作为 should 子句提升稀疏重合候选的召回。
func (c *Client) SearchCandidates(ctx context.Context, query CandidateQuery) ([]Candidate, error) {
	maxCandidates := query.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 20
	}

	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"category": query.Category}},
	}
	if query.WordCount > 0 {
		// 长度差异过大的候选即便词汇重合也几乎不可能是抄袭来源
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{
				"word_count": map[string]interface{}{
					"gte": query.WordCount * 3 / 10,
					"lte": query.WordCount * 33 / 10,
				},
			},
		})
	}
	if query.PageCount > 0 {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{
				"page_count": map[string]interface{}{
					"gte": query.PageCount * 3 / 10,
					"lte": query.PageCount * 33 / 10,
				},
			},
		})
	}

	boolQuery := map[string]interface{}{
		"filter": filters,
	}
	if query.ExcludeBatchID != "" {
		boolQuery["must_not"] = []map[string]interface{}{
			{"term": map[string]interface{}{"batch_id": query.ExcludeBatchID}},
		}
	}
	if len(query.Keywords) > 0 {
		boolQuery["should"] = []map[string]interface{}{
			{"terms": map[string]interface{}{"keywords": query.Keywords, "boost": 1.5}},
		}
	}

	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   query.Embedding,
		"k":              maxCandidates * 3,
		"num_candidates": maxCandidates * 10,
		"filter":         map[string]interface{}{"bool": boolQuery},
	}
	if query.SimilarityFloor > 0 {
		knn["similarity"] = query.SimilarityFloor
	}
	esQuery := map[string]interface{}{
		"knn":  knn,
		"size": maxCandidates,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(c.indexName),
		ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsCorpusDocument `json:"_source"`
				Score  float64                `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	candidates := make([]Candidate, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		candidates = append(candidates, Candidate{Doc: hit.Source, RawScore: hit.Score})
	}
	log.Infof("[ES] 候选检索完成, category=%s, 返回 %d 个候选", query.Category, len(candidates))
	return candidates, nil
}
