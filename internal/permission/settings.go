package permission

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

// settingsFile is the on-disk shape of one permission settings document.
type settingsFile struct {
	Permissions struct {
		Allow []string `json:"allow"`
		Deny  []string `json:"deny"`
	} `json:"permissions"`
}

// Rules holds the merged, ordered allow and deny pattern lists.
type Rules struct {
	Allow []Pattern
	Deny  []Pattern
}

// LoadRules reads the given settings files in precedence order and
// concatenates their allow and deny lists. Missing or unreadable files
// contribute nothing; they are not errors.
func LoadRules(paths []string, log *logger.Logger) Rules {
	var rules Rules
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var file settingsFile
		if err := json.Unmarshal(data, &file); err != nil {
			if log != nil {
				log.Warn("skipping malformed permission settings file",
					zap.String("path", path),
					zap.Error(err))
			}
			continue
		}
		rules.Allow = append(rules.Allow, ParsePatterns(file.Permissions.Allow)...)
		rules.Deny = append(rules.Deny, ParsePatterns(file.Permissions.Deny)...)
	}
	return rules
}
