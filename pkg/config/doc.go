/*
Package config loads the agent configuration from an optional YAML file.

Values start from Default, are overlaid by the file, and are finally
overridden by command line flags that were set explicitly. ${VAR_NAME}
references anywhere in the file are replaced with environment variables.

	control_plane:
	  hostname: cp.internal
	  port: 4040
	snapshot_interval: 10s
	runtime:
	  driver: containerd
	  containerd_socket: /run/containerd/containerd.sock
	logging:
	  level: debug
	metrics:
	  addr: :9090
	proxy:
	  addr: :8000
	  routes:
	    - hostname: api.example.com
	      service: api
	      port: 8080
*/
package config
