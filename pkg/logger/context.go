package logger

import "github.com/rs/zerolog"

// WithItem 带物品 ID 的子 logger
func WithItem(itemID uint32) *zerolog.Logger {
	l := L().With().Uint32("item_id", itemID).Logger()
	return &l
}

// WithWorld 带世界 ID 的子 logger
func WithWorld(worldID uint32) *zerolog.Logger {
	l := L().With().Uint32("world_id", worldID).Logger()
	return &l
}

// WithBatch 带批次序号和大小的子 logger
func WithBatch(seq uint64, size int) *zerolog.Logger {
	l := L().With().Uint64("batch", seq).Int("batch_size", size).Logger()
	return &l
}

// WithComponent 带组件名的子 logger
func WithComponent(name string) *zerolog.Logger {
	l := L().With().Str("component", name).Logger()
	return &l
}
