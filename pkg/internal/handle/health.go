package handle

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	pctx "github.com/yeisme/photovault/pkg/context"
	"github.com/yeisme/photovault/pkg/internal/storage"
	"github.com/yeisme/photovault/pkg/internal/storage/kv"
)

const timeout = 2 * time.Second

const (
	statusOK        = "ok"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

type checker interface {
	HealthCheck(ctx context.Context) error
}

type pingChecker func(ctx context.Context) error

func (p pingChecker) HealthCheck(ctx context.Context) error { return p(ctx) }

// dependency 一个被检查的依赖. required 为 false 的依赖失败时服务降级而非不可用:
// 缓存挂掉搜索回源，MQ 挂掉只影响跨实例失效.
type dependency struct {
	chk      checker
	required bool
}

// ComponentHealth 单个依赖的探测结果.
type ComponentHealth struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
	Breaker   string `json:"breaker,omitempty"`
	Pool      *Pool  `json:"pool,omitempty"`
}

// Pool 数据库连接池快照.
type Pool struct {
	Open    int   `json:"open"`
	InUse   int   `json:"in_use"`
	Idle    int   `json:"idle"`
	WaitCnt int64 `json:"wait_count"`
}

func dependencies(m *storage.Manager) map[string]dependency {
	out := make(map[string]dependency, 4)
	if m == nil {
		return out
	}

	if m.DB != nil {
		out["db"] = dependency{chk: m.DB, required: true}
	}

	if m.KV != nil {
		out["kv"] = dependency{chk: pingChecker(m.KV.Ping)}
	}

	if m.MQ != nil {
		out["mq"] = dependency{chk: m.MQ}
	}

	if m.S3 != nil {
		out["s3"] = dependency{chk: m.S3}
	}

	return out
}

func check(ctx context.Context, p dependency) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.chk.HealthCheck(ctx)

	res := ComponentHealth{Status: statusOK, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = statusUnhealthy
		res.Error = err.Error()
	}

	return res
}

// HealthComponent 单个依赖的健康检查，未配置的依赖返回 503.
func HealthComponent(c *gin.Context) {
	name := c.Param("component")

	p, ok := dependencies(pctx.GetManager(c.Request.Context()))[name]
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"component": name, "status": statusUnhealthy, "error": name + " client not initialized"})
		return
	}

	res := check(c.Request.Context(), p)
	if res.Status != statusOK {
		c.JSON(http.StatusServiceUnavailable, gin.H{"component": name, "status": res.Status, "error": res.Error})
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": name, "status": statusOK, "latency_ms": res.LatencyMS})
}

// HealthReady 并发探测全部依赖. 必需依赖失败返回 503，其余失败标记 degraded.
func HealthReady(c *gin.Context) {
	m := pctx.GetManager(c.Request.Context())
	all := dependencies(m)

	var (
		mu      sync.Mutex
		g       errgroup.Group
		results = make(map[string]ComponentHealth, len(all))
	)

	for name, p := range all {
		g.Go(func() error {
			res := check(c.Request.Context(), p)

			mu.Lock()
			results[name] = res
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	if m != nil && m.KV != nil {
		if b, ok := m.KV.Store.(*kv.BreakerStore); ok {
			res := results["kv"]
			res.Breaker = b.State().String()
			results["kv"] = res
		}
	}

	if m != nil && m.DB != nil {
		st := m.DB.Stats()
		res := results["db"]
		res.Pool = &Pool{Open: st.OpenConnections, InUse: st.InUse, Idle: st.Idle, WaitCnt: st.WaitCount}
		results["db"] = res
	}

	status, code := statusOK, http.StatusOK

	for name, res := range results {
		if res.Status == statusOK {
			continue
		}

		if all[name].required {
			status, code = statusUnhealthy, http.StatusServiceUnavailable
			break
		}

		status = statusDegraded
	}

	if _, ok := all["db"]; !ok {
		status, code = statusUnhealthy, http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{"status": status, "components": results})
}
