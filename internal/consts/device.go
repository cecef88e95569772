package consts

// イベントタイプの定数（input-event-codes.hより）
const (
	Syn = 0x00 // 同期イベント
	Key = 0x01 // キーイベント
	Rel = 0x02 // 相対座標イベント

	RelX      = 0x00 // X軸の相対移動
	RelY      = 0x01 // Y軸の相対移動
	RelHWheel = 0x06 // 水平ホイールの相対移動
	RelWheel  = 0x08 // ホイールの相対移動

	SynReport = 0 // イベント報告の同期
)

// デバイス制御用定数
const (
	EVIOCGRAB = 0x40044590 // デバイスの排他制御用のIOCTL
)
