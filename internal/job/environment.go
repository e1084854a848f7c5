package job

import (
	"path"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/config"
)

// BuildEnvironment merges the shared object-storage settings with one data store's
// connection settings. Values are passed through as-is, including empty ones.
func BuildEnvironment(common config.ObjectStorage, specific config.DataStore, prefix string) map[string]string {
	env := map[string]string{
		"AWS_BUCKET_NAME": common.Bucket,
		"AWS_REGION":      common.Region,
		"AWS_PROFILE":     common.Profile,
	}
	if common.MountTarget != "" {
		env["AWS_SHARED_CREDENTIALS_FILE"] = path.Join(common.MountTarget, "credentials")
		env["AWS_CONFIG_FILE"] = path.Join(common.MountTarget, "config")
	}

	// Static keys are optional and only forwarded when configured.
	optional := map[string]string{
		"AWS_ACCESS_KEY_ID":     common.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": common.SecretAccessKey,
		"AWS_SESSION_TOKEN":     common.SessionToken,
	}
	for k, v := range optional {
		if v != "" {
			env[k] = v
		}
	}

	env[prefix+"HOST"] = specific.Host
	env[prefix+"PORT"] = specific.Port
	env[prefix+"USER"] = specific.User
	env[prefix+"PASSWORD"] = specific.Password
	env[prefix+"DATABASE"] = specific.Database
	return env
}
