// Package config loads the n8nbox launcher configuration.
//
// The configuration is a Lua file evaluated in a sandboxed gopher-lua VM
// with a read-only platform table, so per-platform choices can be written
// declaratively:
//
//	n8nbox = {
//	  channel = "global",
//	  runtime = {
//	    version = "v20.19.0",
//	    mirror = platform.is_macos and "https://nodejs.org/dist" or nil,
//	  },
//	  server = { port = 5678 },
//	}
//
// Every field is optional; missing fields keep their defaults. A missing
// file is not an error and yields Default().
//
// # Schema
//
//	n8nbox.data_dir                  string   application data root
//	n8nbox.log_level                 string   trace|debug|info|warn|error
//	n8nbox.channel                   string   key into application.proxies
//	n8nbox.metrics_addr              string   listen address for /metrics
//	n8nbox.runtime.version           string   Node.js release, e.g. "v20.19.0"
//	n8nbox.runtime.mirror            string   base URL of the Node.js dist mirror
//	n8nbox.runtime.verify_checksums  bool     check SHASUMS256.txt before install
//	n8nbox.runtime.keyring           string   OpenPGP keyring for SHASUMS256.txt.sig
//	n8nbox.application.release_url   string   base URL of the bundle release assets
//	n8nbox.application.manifest_url  string   latest-release JSON with asset digests
//	n8nbox.application.proxies       table    channel -> URL prefix
//	n8nbox.server.host               string   loopback host n8n binds to
//	n8nbox.server.port               number   port n8n binds to
//	n8nbox.env                       table    extra environment for the child
package config
