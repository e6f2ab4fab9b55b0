package config

import (
	"os"
	"path/filepath"
	"strings"
)

// AppConfig holds process-level settings read from the environment.
// Runtime-tunable review settings live in the system_config table instead.
type AppConfig struct {
	Port               string
	GinMode            string
	UploadPath         string
	JWTSecret          string
	AllowedOrigins     []string
	CriteriaFile       string
	StaticTemplateFile string
	TemplateMasterFile string
	PublicBaseURL      string
}

func getenvDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// LoadAppConfig reads the process configuration. Call after godotenv.Load.
func LoadAppConfig() AppConfig {
	uploadPath := getenvDefault("UPLOAD_PATH", "./uploads")

	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return AppConfig{
		Port:               getenvDefault("SERVER_PORT", "8080"),
		GinMode:            os.Getenv("GIN_MODE"),
		UploadPath:         uploadPath,
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AllowedOrigins:     origins,
		CriteriaFile:       os.Getenv("CRITERIA_FILE"),
		StaticTemplateFile: getenvDefault("STATIC_TEMPLATE_FILE", filepath.Join(uploadPath, "templates", "static", "evaluation_template.docx")),
		TemplateMasterFile: getenvDefault("TEMPLATE_MASTER_FILE", filepath.Join(uploadPath, "templates", "master", "evaluation_master.docx")),
		PublicBaseURL:      strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
	}
}
