package models

import "time"

// 消息类型，和存储层的 CHECK 约束保持一致。
const (
	TypeText  = "text"
	TypeImage = "image"
)

// ClipReg 的合法取值范围（仅 text 消息可携带）。
const (
	ClipRegMin = 0
	ClipRegMax = 5
)

// Message 是房间日志里的一行。列名沿用最初的 schema，
// 这样旧的 <room>.db 文件可以直接被识别。
type Message struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"column:userId;not null" json:"userId"`
	Type      string    `gorm:"column:type;not null" json:"type"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	Timestamp time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
	ClipReg   *int      `gorm:"column:clipReg" json:"clipReg,omitempty"`
}

func (Message) TableName() string { return "messages" }
