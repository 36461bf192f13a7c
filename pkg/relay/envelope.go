package relay

import (
	"encoding/json"
	"time"
)

// 入站帧类型
const (
	frameLogin         = "login"
	frameRegister      = "register" // login 的别名，两种写法均接受
	frameSync          = "sync"
	frameChat          = "chat"
	frameFriendRequest = "friendRequest"
	frameFriendAccept  = "friendAccept"
	frameFriendReject  = "friendReject"
	framePushSubscribe = "pushSubscribe"
)

// 出站通知类型
const (
	noticeLoginSuccess   = "loginSuccess"
	noticeSyncData       = "syncData"
	noticeChat           = "chat"
	noticeFriendRequest  = "friendRequest"
	noticeFriendAccepted = "friendAccepted"
	noticeFriendAdded    = "friendAdded"
	noticeFriendRejected = "friendRejected"
	noticeOnlineUsers    = "onlineUsers"
)

// envelopeHead 帧头，仅用于识别类型
type envelopeHead struct {
	Type string `json:"type"`
}

// profilePayload login 帧携带的档案字段
type profilePayload struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// loginFrame login / register 帧
type loginFrame struct {
	Profile profilePayload `json:"profile"`
}

// syncFrame sync 帧：重新请求积压消息与待处理好友申请
type syncFrame struct {
	UUID string `json:"uuid"`
}

// chatFrame chat 帧
type chatFrame struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// friendFrame friendRequest / friendAccept / friendReject 帧。
// FromProfile 是发送该帧一方的档案，To 是另一方的 uuid。
type friendFrame struct {
	FromProfile profilePayload `json:"fromProfile"`
	To          string         `json:"to"`
}

// pushSubscribeFrame pushSubscribe 帧，订阅内容原样转存
type pushSubscribeFrame struct {
	Subscription json.RawMessage `json:"subscription"`
}

// LoginSuccessNotice 登录成功通知
type LoginSuccessNotice struct {
	Type    string   `json:"type"`
	Profile *Profile `json:"profile"`
}

// SyncDataNotice 同步数据通知：积压消息 + 待处理好友申请 + 服务器时间
type SyncDataNotice struct {
	Type           string     `json:"type"`
	Messages       []*Message `json:"messages"`
	FriendRequests []string   `json:"friendRequests"`
	ServerTime     int64      `json:"serverTime"`
}

// ChatNotice 消息投递通知（接收方与发送方回显共用同一形状）
type ChatNotice struct {
	Type string `json:"type"`
	Message
}

// FriendRequestNotice 好友申请通知
type FriendRequestNotice struct {
	Type        string    `json:"type"`
	FromProfile FriendRef `json:"fromProfile"`
}

// FriendNotice 好友关系决议通知（friendAccepted / friendAdded / friendRejected）
type FriendNotice struct {
	Type   string    `json:"type"`
	Friend FriendRef `json:"friend"`
}

// OnlineUsersNotice 在线好友列表通知
type OnlineUsersNotice struct {
	Type  string      `json:"type"`
	Users []FriendRef `json:"users"`
}

func marshalLoginSuccess(p *Profile) []byte {
	data, _ := json.Marshal(&LoginSuccessNotice{Type: noticeLoginSuccess, Profile: p})
	return data
}

func marshalSyncData(msgs []*Message, pending []string) []byte {
	if msgs == nil {
		msgs = []*Message{}
	}
	if pending == nil {
		pending = []string{}
	}
	data, _ := json.Marshal(&SyncDataNotice{
		Type:           noticeSyncData,
		Messages:       msgs,
		FriendRequests: pending,
		ServerTime:     time.Now().UnixMilli(),
	})
	return data
}

func marshalChat(msg *Message) []byte {
	data, _ := json.Marshal(&ChatNotice{Type: noticeChat, Message: *msg})
	return data
}

func marshalFriendRequest(from FriendRef) []byte {
	data, _ := json.Marshal(&FriendRequestNotice{Type: noticeFriendRequest, FromProfile: from})
	return data
}

func marshalFriendNotice(notice string, friend FriendRef) []byte {
	data, _ := json.Marshal(&FriendNotice{Type: notice, Friend: friend})
	return data
}

func marshalOnlineUsers(users []FriendRef) []byte {
	if users == nil {
		users = []FriendRef{}
	}
	data, _ := json.Marshal(&OnlineUsersNotice{Type: noticeOnlineUsers, Users: users})
	return data
}
