package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions turns a credentials value into client options. The value is
// either inline service account JSON or a path to a key file. An empty value
// falls back to GOOGLE_APPLICATION_CREDENTIALS_JSON, then
// GOOGLE_APPLICATION_CREDENTIALS, then application default credentials.
func ClientOptions(credentials string) []option.ClientOption {
	creds := strings.TrimSpace(credentials)
	for _, name := range []string{"GOOGLE_APPLICATION_CREDENTIALS_JSON", "GOOGLE_APPLICATION_CREDENTIALS"} {
		if creds != "" {
			break
		}
		creds = strings.TrimSpace(os.Getenv(name))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
