package ai

import (
	"fmt"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

func buildClassifyPrompt(a, b types.SkillRecord) string {
	return fmt.Sprintf(`You are comparing two K-12 skill statements from educational standards.

SKILL A:
ID: %s
Text: %s
Authority: %s
Grade: %s (band %s)
Area: %s
Content domain: %s

SKILL B:
ID: %s
Text: %s
Authority: %s
Grade: %s (band %s)
Area: %s
Content domain: %s

TASK:
Decide whether A and B describe the SAME underlying competency, and if so how they relate.

LABELS:
- "cross-authority": the same skill written independently by different standard-setting bodies,
  at the same grade band.
- "grade-progression": the same skill at increasing complexity across grade levels, usually from
  the same authority.
- "unrelated": different competencies, even if the wording overlaps.

GUIDELINES:
1. Judge the competency a student demonstrates, not shared vocabulary
2. "Blend phonemes" and "segment phonemes" are different skills
3. Added qualifiers ("fluently", "multi-digit", "with accuracy") at a higher grade suggest progression
4. When in doubt, answer "unrelated"

OUTPUT FORMAT (JSON only, no markdown):
{
  "label": "cross-authority" | "grade-progression" | "unrelated",
  "rationale": "One sentence explaining the decision"
}

IMPORTANT: Respond with ONLY raw JSON. Do NOT wrap it in markdown code fences.`,
		a.ID, a.Text, orNone(a.Authority), a.GradeLabel, a.Band(), a.Area, a.ContentDomain,
		b.ID, b.Text, orNone(b.Authority), b.GradeLabel, b.Band(), b.Area, b.ContentDomain)
}

func orNone(s string) string {
	if s == "" {
		return "(unspecified)"
	}
	return s
}
