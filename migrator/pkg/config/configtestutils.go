package config

import "os"

const minimalConfig = `
source:
  profile: source-admin
  region: us-east-1
  stack_name: redis-source
target:
  profile: target-admin
  region: us-west-2
  setup_stack_name: redis-target-migration-setup
  cluster_stack_name: redis-target-cluster
node_type: cache.t3.medium
`

func setEnvVar(key string, value string) {
	os.Setenv(key, value)
}

func clearAllEnvVars() {
	os.Clearenv()
}

func writeConfigFile(dir string, contents string) (string, error) {
	f, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(contents); err != nil {
		return "", err
	}
	return f.Name(), nil
}
