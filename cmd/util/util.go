package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/serializer"
	"github.com/ValentinKolb/wbKV/rpc/transport"
	"github.com/ValentinKolb/wbKV/rpc/transport/http"
	"github.com/ValentinKolb/wbKV/rpc/transport/tcp"
	"github.com/ValentinKolb/wbKV/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder

	for _, word := range strings.Fields(text) {
		if currentLine.Len() > 0 && currentLine.Len()+1+len(word) > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read WBKV_* environment variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("wbkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// SetupRPCClientFlags adds the RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "endpoints"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("The address of the wbKV server. Multiple endpoints can be specified as a comma-separated list, requests are balanced round robin"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many endpoints to try before a request fails"))

	key = "shard"
	cmd.PersistentFlags().Int(key, 100, WrapString("ID of the shard to connect to"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint (tcp and unix only)"))

	SetupSocketFlags(cmd)
}

// SetupSocketFlags adds the socket option flags of the tcp and unix transports to a command
func SetupSocketFlags(cmd *cobra.Command) {
	key := "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket write buffer in KB, 0 keeps the system default (ignored for http)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket read buffer in KB, 0 keeps the system default (ignored for http)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds, 0 keeps the system default (tcp only)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time in seconds, 0 keeps the system default (tcp only)"))
}

// GetSocketConfig reads the socket options from viper
func GetSocketConfig() common.SocketConfig {
	return common.SocketConfig{
		WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
	}
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Transport:              viper.GetString("transport"),
		TimeoutSecond:          viper.GetInt("timeout"),
		RetryCount:             viper.GetInt("retries"),
		Endpoints:              strings.Split(viper.GetString("endpoints"), ","),
		ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
		Socket:                 GetSocketConfig(),
	}
}

// GetClientTransport creates the client transport selected by the --transport flag
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected one of: http, tcp, unix)", viper.GetString("transport"))
	}
}

// GetServerTransport creates the server transport selected by the --transport flag
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected one of: http, tcp, unix)", viper.GetString("transport"))
	}
}

// GetSerializer creates the serializer selected by the --serializer flag
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.ByName(viper.GetString("serializer"))
}

// GetShardID retrieves the configured shard ID
func GetShardID() uint64 {
	return uint64(viper.GetInt("shard"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
