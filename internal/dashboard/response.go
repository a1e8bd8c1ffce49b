package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 統一レスポンス形式。全ハンドラ共通。

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": gin.H{"code": "not_found", "message": message}})
}
