// Package profile extracts a structured candidate profile from resume text
// using keyword and pattern heuristics.
package profile

import (
	"regexp"
	"sort"
	"strings"
)

const (
	maxSkills     = 50
	maxExperience = 15
	maxEducation  = 10
	maxProjects   = 10
)

var (
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	phonePattern      = regexp.MustCompile(`\+?\(?[0-9]{1,4}\)?[-\s./0-9]{8,}`)
	datePattern       = regexp.MustCompile(`(?i)(\d{4})\s*[-–—]\s*(\d{4}|present|current|now)`)
	sectionPattern    = regexp.MustCompile(`(?i)(experience|employment|work\s+history)`)
	educationPattern  = regexp.MustCompile(`(?i)(university|college|institute|\bb\.?s\.?\b|\bm\.?s\.?\b|\bb\.?a\.?\b|\bm\.?a\.?\b|phd|degree)`)
	skillsPattern     = regexp.MustCompile(`(?is)skills?[:\s]+([^\n]+(?:\n[^\n]+){0,5})`)
	skillSplitPattern = regexp.MustCompile(`[,;|\n•\-]`)
	projectsPattern   = regexp.MustCompile(`(?i)projects?`)
)

var techSkills = []string{
	"python", "java", "javascript", "typescript", "react", "node", "sql", "aws",
	"docker", "kubernetes", "fastapi", "django", "flask", "postgresql", "mongodb",
	"git", "ci/cd", "rest", "api", "machine learning", "tensorflow", "pytorch",
	"langchain", "langgraph", "openai", "llm", "golang", "rust", "terraform",
}

var roleKeywords = []string{"engineer", "developer", "manager", "analyst", "lead", "director", "at ", " - "}

// Profile is the parsed form of a resume.
type Profile struct {
	ContactInfo map[string]string   `json:"contact_info"`
	Skills      []string            `json:"skills"`
	Experience  []map[string]string `json:"experience"`
	Projects    []map[string]string `json:"projects"`
	Education   []map[string]string `json:"education"`
	RawText     string              `json:"raw_text,omitempty"`
}

// Parse extracts a profile from plain text.
func Parse(text string) *Profile {
	return &Profile{
		ContactInfo: map[string]string{
			"email": emailPattern.FindString(text),
			"phone": strings.TrimSpace(phonePattern.FindString(text)),
		},
		Skills:     parseSkills(text),
		Experience: parseExperience(text),
		Projects:   parseProjects(text),
		Education:  parseEducation(text),
		RawText:    text,
	}
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func parseSkills(text string) []string {
	seen := make(map[string]struct{})
	lower := strings.ToLower(text)
	for _, s := range techSkills {
		if strings.Contains(lower, s) {
			seen[s] = struct{}{}
		}
	}

	if m := skillsPattern.FindStringSubmatch(text); m != nil {
		for _, part := range skillSplitPattern.Split(m[1], -1) {
			part = strings.TrimSpace(part)
			if len(part) >= 2 && len(part) <= 50 && !strings.HasSuffix(part, ":") {
				seen[part] = struct{}{}
			}
		}
	}

	skills := make([]string, 0, len(seen))
	for s := range seen {
		skills = append(skills, s)
	}
	sort.Strings(skills)
	if len(skills) > maxSkills {
		skills = skills[:maxSkills]
	}
	return skills
}

func parseExperience(text string) []map[string]string {
	entries := []map[string]string{}
	for _, line := range nonEmptyLines(text) {
		if len(line) < 50 && sectionPattern.MatchString(line) {
			continue
		}
		loc := datePattern.FindStringIndex(line)
		if loc == nil && !hasRoleKeyword(line) {
			continue
		}
		role, dates := line, ""
		if loc != nil {
			dates = line[loc[0]:loc[1]]
			role = strings.TrimRight(strings.TrimSpace(line[:loc[0]]), ",- ")
		}
		entries = append(entries, map[string]string{"role": role, "company": "", "dates": dates})
		if len(entries) == maxExperience {
			break
		}
	}
	return entries
}

func hasRoleKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range roleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func parseEducation(text string) []map[string]string {
	entries := []map[string]string{}
	for _, line := range nonEmptyLines(text) {
		if educationPattern.MatchString(line) {
			entries = append(entries, map[string]string{"institution": line, "degree": "", "year": ""})
			if len(entries) == maxEducation {
				break
			}
		}
	}
	return entries
}

func parseProjects(text string) []map[string]string {
	projects := []map[string]string{}
	inSection := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 40 && projectsPattern.MatchString(line) {
			inSection = true
			continue
		}
		if inSection && len(line) > 10 && !strings.HasPrefix(line, "•") {
			name := line
			if len(name) > 200 {
				name = name[:200]
			}
			projects = append(projects, map[string]string{"name": name, "description": ""})
			if len(projects) == maxProjects {
				break
			}
		}
	}
	return projects
}
