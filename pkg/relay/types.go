package relay

// Profile 用户档案，以外部签发的 uuid 为稳定标识。
// 服务器生命周期内只做软下线，从不删除。
type Profile struct {
	// UUID 稳定标识（外部签发，全局唯一）
	UUID string `json:"uuid"`

	// Name 显示名称
	Name string `json:"name"`

	// Image 头像引用
	Image string `json:"image"`

	// Online 在线标记
	Online bool `json:"online"`

	// Friends 好友列表（冗余快照，含名称与头像）
	Friends []FriendRef `json:"friends"`

	// Pending 待处理的好友申请（申请方 uuid 列表）
	Pending []string `json:"pending"`
}

// FriendRef 好友条目快照
type FriendRef struct {
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Online bool   `json:"online,omitempty"`
}

// HasFriend 是否已是好友
func (p *Profile) HasFriend(uuid string) bool {
	for _, f := range p.Friends {
		if f.UUID == uuid {
			return true
		}
	}
	return false
}

// HasPending 是否存在来自 uuid 的待处理申请
func (p *Profile) HasPending(uuid string) bool {
	for _, u := range p.Pending {
		if u == uuid {
			return true
		}
	}
	return false
}

// AddFriend 添加好友条目（幂等）
func (p *Profile) AddFriend(ref FriendRef) {
	if p.HasFriend(ref.UUID) {
		return
	}
	p.Friends = append(p.Friends, ref)
}

// RemovePending 移除来自 uuid 的待处理申请（幂等）
func (p *Profile) RemovePending(uuid string) {
	out := p.Pending[:0]
	for _, u := range p.Pending {
		if u != uuid {
			out = append(out, u)
		}
	}
	p.Pending = out
}

// Ref 生成当前档案的好友快照
func (p *Profile) Ref() FriendRef {
	return FriendRef{UUID: p.UUID, Name: p.Name, Image: p.Image}
}

// Clone 深拷贝档案，避免存储层与引擎共享可变切片
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.Friends = append([]FriendRef(nil), p.Friends...)
	cp.Pending = append([]string(nil), p.Pending...)
	return &cp
}

// Message 点对点消息。Delivered 单调地由 false 变为 true，从不回退。
type Message struct {
	// ID 服务端分配的消息 ID
	ID string `json:"id"`

	// From 发送方 uuid
	From string `json:"from"`

	// To 接收方 uuid
	To string `json:"to"`

	// Text 消息正文
	Text string `json:"text"`

	// SentAt 服务端时间戳（毫秒）
	SentAt int64 `json:"sentAt"`

	// Delivered 是否已投递
	Delivered bool `json:"delivered"`
}
