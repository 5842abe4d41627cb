package queue

// 主题命名规范：pv.<域>.<动作>，保持稳定且向后兼容.

const (
	TopicPhotoCreated  = "pv.photo.created"  // 新照片登记
	TopicPhotoUpdated  = "pv.photo.updated"  // caption 或标签变化
	TopicPhotoDeleted  = "pv.photo.deleted"  // 软删除
	TopicPhotoRestored = "pv.photo.restored" // 从回收站恢复
	TopicPhotoPurged   = "pv.photo.purged"   // 回收站清理后硬删除
	TopicAlbumChanged  = "pv.album.changed"  // 相册成员或状态变化，影响相册范围内的搜索
)

// PhotoTopics 所有会导致缓存失效的主题.
var PhotoTopics = []string{
	TopicPhotoCreated,
	TopicPhotoUpdated,
	TopicPhotoDeleted,
	TopicPhotoRestored,
	TopicPhotoPurged,
	TopicAlbumChanged,
}
