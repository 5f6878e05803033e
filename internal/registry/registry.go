package registry

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// 注册失败的两种原因；调用方都必须随后断开新连接。
var (
	ErrEmptyIdentity = errors.New("room and user id must not be empty")
	ErrDuplicateUser = errors.New("user id already exists in this room")
)

// Conn 是注册表看到的连接形态。Send 不阻塞，塞不进发送队列时返回 false。
type Conn interface {
	Send(b []byte) bool
}

// Releaser 在房间里最后一个会话离开时被调用，提示存储层可以释放句柄。
type Releaser func(room string)

// Registry 维护 房间 -> (用户 -> 连接) 的在线状态，是同房间内
// 用户名唯一性的唯一裁决者。所有方法并发安全。
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]Conn
	release Releaser
}

func New(release Releaser) *Registry {
	if release == nil {
		release = func(string) {}
	}
	return &Registry{rooms: make(map[string]map[string]Conn), release: release}
}

// Register 尝试把连接登记为 room 里的 userID。同名用户已在线时拒绝，
// 已有会话不受影响。
func (r *Registry) Register(room, userID string, c Conn) error {
	if strings.TrimSpace(room) == "" || strings.TrimSpace(userID) == "" {
		return ErrEmptyIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	users := r.rooms[room]
	if users == nil {
		users = make(map[string]Conn)
		r.rooms[room] = users
	}
	if _, ok := users[userID]; ok {
		return ErrDuplicateUser
	}
	users[userID] = c
	log.Info().Str("room", room).Str("userId", userID).Int("online", len(users)).Msg("session registered")
	return nil
}

// Unregister 移除会话。房间空出时删掉房间条目并通知 Releaser，
// 这只是生命周期提示，磁盘上的历史不受影响。
func (r *Registry) Unregister(room, userID string) {
	r.mu.Lock()
	users := r.rooms[room]
	if users == nil {
		r.mu.Unlock()
		return
	}
	if _, ok := users[userID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(users, userID)
	empty := len(users) == 0
	if empty {
		delete(r.rooms, room)
	}
	r.mu.Unlock()

	log.Info().Str("room", room).Str("userId", userID).Msg("session unregistered")
	if empty {
		r.release(room)
	}
}

// BroadcastTargets 返回房间内全部在线连接的快照，包含发送者自己。
func (r *Registry) BroadcastTargets(room string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := r.rooms[room]
	targets := make([]Conn, 0, len(users))
	for _, c := range users {
		targets = append(targets, c)
	}
	return targets
}

// Online 返回房间在线人数。
func (r *Registry) Online(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms 返回当前有人在线的房间名。
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
