package browser

import "strings"

// BlockType describes the kind of anti-bot page detected.
type BlockType string

const (
	BlockNone         BlockType = ""
	BlockCloudflare   BlockType = "cloudflare"
	BlockCaptcha      BlockType = "captcha"
	BlockRobotCheck   BlockType = "robot_check"
	BlockAccessDenied BlockType = "access_denied"
	BlockJSShell      BlockType = "js_shell"
)

// DetectBlock checks rendered HTML for signs of anti-bot protection.
func DetectBlock(html string) (bool, BlockType) {
	lower := strings.ToLower(html)

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "not a robot") ||
		strings.Contains(lower, "robot check") ||
		strings.Contains(lower, "enter the characters you see below") {
		return true, BlockRobotCheck
	}

	if strings.Contains(lower, "captcha") {
		return true, BlockCaptcha
	}

	if len(lower) < 5000 && (strings.Contains(lower, "<title>access denied") ||
		strings.Contains(lower, "you don't have permission to access")) {
		return true, BlockAccessDenied
	}

	if len(lower) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
