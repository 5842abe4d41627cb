// Package service 实现照片、标签、相册与回收站的业务逻辑.
//
// 所有写操作在数据库提交后同步执行缓存失效（见 Invalidator），搜索结果的正确性
// 不依赖事件送达：事件只用于让其他实例的本地缓存尽快失效.
package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/yeisme/photovault/pkg/cache"
	"github.com/yeisme/photovault/pkg/configs"
	pctx "github.com/yeisme/photovault/pkg/context"
	"github.com/yeisme/photovault/pkg/internal/repository"
	"github.com/yeisme/photovault/pkg/internal/search"
	"github.com/yeisme/photovault/pkg/internal/storage/kv"
	"github.com/yeisme/photovault/pkg/queue"
)

var (
	// ErrPhotoNotFound 照片不存在、已删除或不属于当前用户.
	ErrPhotoNotFound = errors.New("photo not found")
	// ErrAlbumNotFound 相册不存在、已删除或不属于当前用户.
	ErrAlbumNotFound = errors.New("album not found")
	// ErrInvalidPhoto 照片字段不合法.
	ErrInvalidPhoto = errors.New("invalid photo")
)

// instanceID 本进程标识，用于识别自己发布的事件.
var instanceID = uuid.NewString()

// InstanceID 返回本进程标识.
func InstanceID() string { return instanceID }

// Publisher 事件发布，*mq.Client 满足该接口.
type Publisher = queue.Publisher

// Presigner 生成照片的临时访问地址，*s3.Client 满足该接口.
type Presigner interface {
	PresignGet(ctx context.Context, filePath string) (string, error)
}

// Deps 服务依赖. MQ 与 S3 可以为空.
type Deps struct {
	DB     *gorm.DB
	KV     kv.Store
	MQ     Publisher
	S3     Presigner
	Search configs.SearchConfig
	Logger zerolog.Logger
}

// DepsFromContext 从 context 中的存储管理器组装依赖.
func DepsFromContext(ctx context.Context, cfg *configs.AppConfig, l zerolog.Logger) (Deps, error) {
	d := Deps{Search: cfg.Search, Logger: l}

	dbc := pctx.GetDBClient(ctx)
	kvc := pctx.GetKVClient(ctx)

	if dbc == nil || kvc == nil {
		return d, errors.New("storage manager missing db or kv client")
	}

	d.DB = dbc.GetDB()
	d.KV = kvc.Store

	// 避免把 nil 指针装进接口
	if mqc := pctx.GetMQClient(ctx); mqc != nil {
		d.MQ = mqc
	}

	if s3c := pctx.GetS3Client(ctx); s3c != nil {
		d.S3 = s3c
	}

	return d, nil
}

// Services 聚合全部服务，进程内只创建一次.
type Services struct {
	Search      *search.Service
	Limits      search.Limits
	Photos      *PhotoService
	Tags        *TagService
	Albums      *AlbumService
	Trash       *TrashService
	Invalidator *Invalidator
}

// New 创建全部服务.
func New(d Deps) *Services {
	repo := repository.NewPhotoRepository(d.DB)
	meta := search.NewMetadataCache(d.KV, d.Search.PhotoTTL)
	c := cache.NewCache(d.KV)
	inv := NewInvalidator(meta, c, d.MQ, d.Logger)

	return &Services{
		Search:      NewSearchService(d, repo, meta),
		Limits:      Limits(d.Search),
		Photos:      &PhotoService{db: d.DB, repo: repo, meta: meta, inv: inv, s3: d.S3, log: d.Logger},
		Tags:        &TagService{db: d.DB, cache: c, ttl: d.Search.TagListTTL},
		Albums:      &AlbumService{db: d.DB, inv: inv},
		Trash:       &TrashService{db: d.DB, inv: inv, log: d.Logger},
		Invalidator: inv,
	}
}

// Limits 由配置得到查询约束.
func Limits(cfg configs.SearchConfig) search.Limits {
	return search.Limits{
		DefaultLimit:     cfg.DefaultLimit,
		MaxLimit:         cfg.MaxLimit,
		MaxTags:          cfg.MaxTagFilters,
		MaxCaptionLength: cfg.MaxCaptionLength,
	}
}

// NewSearchService 按配置组装搜索编排.
func NewSearchService(d Deps, source search.Source, meta search.MetadataCache) *search.Service {
	completeTTL := d.Search.GetCompleteTTL()

	return search.NewService(
		source,
		meta,
		search.NewTagResultCache(d.KV, d.Search.ResultTTL, completeTTL),
		search.NewRankedResultCache(d.KV, d.Search.ResultTTL, completeTTL),
		search.WithLogger(d.Logger),
		search.WithSingleFlight(d.Search.SingleFlight),
		search.WithResultCacheBypass(d.Search.CacheDisabled),
	)
}
