package relay

// Conn 传输句柄能力接口。引擎不依赖任何具体的 socket 实现，
// 只要求句柄具备非阻塞发送与关闭两种能力。发送失败必须立即返回，
// 由调用方决定回退策略（例如转入离线队列）。
type Conn interface {
	Send(payload []byte) error
	Close() error
}

// Pinger 可选的心跳探测能力。实现该接口的句柄会收到周期性探测帧；
// 未实现的句柄（例如测试桩）由调用方自行模拟应答。
type Pinger interface {
	Ping() error
}

// client 一条已接入的连接。登录成功前 uuid 为空；
// 同一连接重复登录会刷新绑定而不会产生重复档案。
type client struct {
	conn Conn
	uuid string
}
