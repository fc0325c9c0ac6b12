// Package config loads the alertwall configuration file.
//
// The file is HCL (JSON accepted by extension) with four optional blocks:
//
//	log_level = "info"
//
//	watch {
//	  log_path  = "/var/log/suricata/eve.json"
//	  api_url   = "http://127.0.0.1:5000"
//	  whitelist = ["127.0.0.1", "10.0.0.0/8"]
//	  timeout   = "5s"
//	}
//
//	api {
//	  listen   = "0.0.0.0:5000"
//	  audit_db = "/var/lib/alertwall/audit.db"
//	}
//
//	firewall {
//	  backend = "iptables"
//	  chain   = "ALERTWALL"
//	}
//
//	inspector {
//	  queue = 0
//	}
//
// ALERTWALL_* environment variables override file values. The result is
// validated once at startup and treated as read-only afterwards.
package config
