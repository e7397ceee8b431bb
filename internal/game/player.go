package game

import "sync/atomic"

// Player 游戏桥上报的角色状态，0 表示未知
type Player struct {
	homeWorld    atomic.Uint32
	currentWorld atomic.Uint32
	contentID    atomic.Uint64
}

func NewPlayer() *Player {
	return &Player{}
}

// Update 写入最新的角色状态
func (p *Player) Update(contentID uint64, homeWorld, currentWorld uint32) {
	p.contentID.Store(contentID)
	p.homeWorld.Store(homeWorld)
	p.currentWorld.Store(currentWorld)
}

// Logout 角色下线后回到未知状态
func (p *Player) Logout() {
	p.Update(0, 0, 0)
}

func (p *Player) HomeWorld() (uint32, bool) {
	id := p.homeWorld.Load()
	return id, id != 0
}

func (p *Player) CurrentWorld() (uint32, bool) {
	id := p.currentWorld.Load()
	return id, id != 0
}

func (p *Player) ContentID() uint64 {
	return p.contentID.Load()
}

// LoggedIn 是否已有角色
func (p *Player) LoggedIn() bool {
	return p.homeWorld.Load() != 0
}
