package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oopstls/clippy-server/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store 管理每个房间各自的 SQLite 日志文件：一个房间一个 <room>.db，
// 句柄懒加载并缓存，Release 只关闭句柄不删数据。
type Store struct {
	mu      sync.RWMutex
	dataDir string
	handles map[string]*Handle
}

// Handle 是单个房间的存储单元。mu 串行化写入，保证 id 与时间戳
// 的分配顺序一致；lastTS 用来夹逼时间戳单调不减。
type Handle struct {
	db     *gorm.DB
	mu     sync.Mutex
	lastTS time.Time
}

func New(dataDir string) *Store {
	return &Store{dataDir: dataDir, handles: make(map[string]*Handle)}
}

// roomKeyOK 拒绝会逃出数据目录的房间名。
func roomKeyOK(room string) bool {
	if room == "" || room == "." || room == ".." {
		return false
	}
	for _, r := range room {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

// Open 获取房间的存储句柄，不存在时创建数据库文件并建表。幂等。
func (s *Store) Open(room string) (*Handle, error) {
	if !roomKeyOK(room) {
		return nil, fmt.Errorf("%w: bad room key %q", ErrStorage, room)
	}
	s.mu.RLock()
	h := s.handles[room]
	s.mu.RUnlock()
	if h != nil {
		return h, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h = s.handles[room]; h != nil {
		return h, nil
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", ErrStorage, err)
	}
	path := filepath.Join(s.dataDir, room+".db")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorage, path, err)
	}
	if err := gdb.AutoMigrate(&models.Message{}); err != nil {
		return nil, fmt.Errorf("%w: migrate %s: %v", ErrStorage, path, err)
	}
	h = &Handle{db: gdb}
	s.handles[room] = h
	log.Info().Str("room", room).Str("path", path).Msg("room store opened")
	return h, nil
}

// Append 校验并持久化一条消息，返回带 id 和时间戳的完整记录。
// image 消息强制清空 clipReg；text 消息的 clipReg 必须落在 [0,5]。
// 校验失败不写任何行。
func (s *Store) Append(room, userID, msgType, content string, clipReg *int) (models.Message, error) {
	switch msgType {
	case models.TypeText:
		if clipReg != nil && (*clipReg < models.ClipRegMin || *clipReg > models.ClipRegMax) {
			return models.Message{}, fmt.Errorf("%w: clipReg %d out of range", ErrValidation, *clipReg)
		}
	case models.TypeImage:
		clipReg = nil
	default:
		return models.Message{}, fmt.Errorf("%w: unknown type %q", ErrValidation, msgType)
	}

	h, err := s.Open(room)
	if err != nil {
		return models.Message{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	ts := time.Now().UTC()
	if ts.Before(h.lastTS) {
		ts = h.lastTS
	}
	msg := models.Message{UserID: userID, Type: msgType, Content: content, Timestamp: ts, ClipReg: clipReg}
	if err := h.db.Create(&msg).Error; err != nil {
		return models.Message{}, fmt.Errorf("%w: append: %v", ErrStorage, err)
	}
	h.lastTS = ts
	return msg, nil
}

// FetchFrom 返回 id >= fromID 的全部消息，按 id 升序。只读，可重复调用。
func (s *Store) FetchFrom(room string, fromID int64) ([]models.Message, error) {
	h, err := s.Open(room)
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	if err := h.db.Where("id >= ?", fromID).Order("id asc").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("%w: fetch from %d: %v", ErrStorage, fromID, err)
	}
	return msgs, nil
}

// FetchOne 按 id 点查一条消息。
func (s *Store) FetchOne(room string, id int64) (*models.Message, error) {
	h, err := s.Open(room)
	if err != nil {
		return nil, err
	}
	var msg models.Message
	if err := h.db.First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: fetch %d: %v", ErrStorage, id, err)
	}
	return &msg, nil
}

// Release 关闭并移除房间句柄。磁盘数据保留，之后 Open 可以看到全部历史。
func (s *Store) Release(room string) {
	s.mu.Lock()
	h := s.handles[room]
	delete(s.handles, room)
	s.mu.Unlock()
	if h == nil {
		return
	}
	if sqlDB, err := h.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Str("room", room).Msg("room store released")
}

// Rooms 返回当前持有打开句柄的房间，按名字排序。
func (s *Store) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.handles))
	for r := range s.handles {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}
