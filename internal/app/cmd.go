package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモード。引数なしの場合の既定値。
	CommandServe Command = "serve"
	// CommandWorker はリアクションイベント購読と無効いいねのクリーンアップを行うワーカーモード。
	CommandWorker Command = "worker"
	// CommandMigrate はマイグレーションを実行する。続く引数に down を指定すると1つ戻す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandToken は指定メンバーのアクセストークンを標準出力に書き出す。ローカル開発用。
	CommandToken Command = "token"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
	string(CommandToken):       CommandToken,
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
