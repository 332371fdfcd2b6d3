// Package handler 定义了 HTTP 请求的处理器。
package handler

import (
	"errors"
	"io"
	"net/http"
	"originality-go/internal/service"
	"originality-go/pkg/log"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ComparisonHandler 结构体定义了比对相关的处理器。
type ComparisonHandler struct {
	comparisonService service.ComparisonService
	segmentService    service.SegmentService
}

// NewComparisonHandler 创建一个新的 ComparisonHandler 实例。
func NewComparisonHandler(comparisonService service.ComparisonService, segmentService service.SegmentService) *ComparisonHandler {
	return &ComparisonHandler{
		comparisonService: comparisonService,
		segmentService:    segmentService,
	}
}

// CompareBatch 处理批量提交比对请求（multipart 表单，files 字段携带文件）。
// 同步阶段在本次请求内完成，语料库比对在后台继续。
func (h *ComparisonHandler) CompareBatch(c *gin.Context) {
	category := c.PostForm("category")
	if category == "" {
		category = "default"
	}

	form, err := c.MultipartForm()
	if err != nil {
		log.Warnf("[ComparisonHandler] 解析 multipart 表单失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的表单数据"})
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "批次中没有文件"})
		return
	}

	files := make([]service.SubmittedFile, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			log.Warnf("[ComparisonHandler] 打开上传文件失败: %s, err=%v", fh.Filename, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "读取上传文件失败: " + fh.Filename})
			return
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "读取上传文件失败: " + fh.Filename})
			return
		}
		files = append(files, service.SubmittedFile{FileName: fh.Filename, Content: content})
	}

	log.Infof("[ComparisonHandler] 收到批量比对请求, category=%s, 文件数=%d", category, len(files))
	resp, err := h.comparisonService.CompareBatch(c.Request.Context(), category, files)
	if err != nil {
		log.Errorf("[ComparisonHandler] 批量比对失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "比对失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": resp, "message": "success"})
}

// GetResult 按行 id 返回一份比对结果。
func (h *ComparisonHandler) GetResult(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的比对 id"})
		return
	}

	result, err := h.comparisonService.GetResult(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "比对结果不存在"})
			return
		}
		log.Errorf("[ComparisonHandler] 查询比对结果失败: id=%d, err=%v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": result, "message": "success"})
}

// GetSegments 返回一份比对结果的证据摘录对，首个请求触发对齐，之后走缓存。
func (h *ComparisonHandler) GetSegments(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的比对 id"})
		return
	}

	segments, err := h.segmentService.GetSegments(c.Request.Context(), uint(id))
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "比对结果不存在"})
		case errors.Is(err, service.ErrSegmentsInProgress):
			c.JSON(http.StatusAccepted, gin.H{"code": 202, "message": "片段抽取进行中，请稍后重试"})
		default:
			log.Errorf("[ComparisonHandler] 片段抽取失败: id=%d, err=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "片段抽取失败"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": segments, "message": "success"})
}
