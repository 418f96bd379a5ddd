package config

// Lua schema field names and globals
const (
	luaGlobal          = "n8nbox"
	luaFieldDataDir    = "data_dir"
	luaFieldLogLevel   = "log_level"
	luaFieldChannel    = "channel"
	luaFieldMetrics    = "metrics_addr"
	luaFieldRuntime    = "runtime"
	luaFieldVersion    = "version"
	luaFieldMirror     = "mirror"
	luaFieldVerify     = "verify_checksums"
	luaFieldKeyring    = "keyring"
	luaFieldApp        = "application"
	luaFieldReleaseURL = "release_url"
	luaFieldManifest   = "manifest_url"
	luaFieldProxies    = "proxies"
	luaFieldServer     = "server"
	luaFieldHost       = "host"
	luaFieldPort       = "port"
	luaFieldEnv        = "env"
)

// Defaults
const (
	DefaultNodeVersion = "v20.19.0"
	DefaultNodeMirror  = "https://mirrors.huaweicloud.com/nodejs"
	DefaultReleaseURL  = "https://github.com/tangtao646/n8n-core-builder/releases/latest/download"
	DefaultManifestURL = "https://api.github.com/repos/tangtao646/n8n-core-builder/releases/latest"
	DefaultChannel     = "cn"
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 5678

	// AppIdentifier names the data directory under the user config dir.
	AppIdentifier = "com.mrtang.n8n"

	// ConfigFileName is the launcher config file name.
	ConfigFileName = "launcher.lua"

	// MaxConfigSize bounds the config file read.
	MaxConfigSize = 1 << 20
)

// Environment overrides
const (
	EnvConfigPath = "N8NBOX_CONFIG"
	EnvDataDir    = "N8NBOX_DATA_DIR"
)
