package figures

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dgallion1/groundtruth/internal/document"
)

var (
	refRe  = regexp.MustCompile(`(?i)(?:Fig\.?\s*|Figure\s*)(\d+)\s*[.:\s]([^\n]{0,200})`)
	termRe = regexp.MustCompile(`[\p{L}\p{N}_]{4,}`)
)

// Reference is a figure number cited in the text, with the text following it.
type Reference struct {
	Number  int
	Caption string
	Offset  int // byte offset of the citation
}

// keywordBonus rewards captions and descriptions that share a figure type or
// endpoint. Ordered so scoring iterates deterministically.
var keywordBonus = []struct {
	keyword string
	bonus   float64
}{
	{"prisma", 2.0},
	{"flowchart", 1.5},
	{"flow diagram", 1.5},
	{"forest plot", 1.5},
	{"funnel plot", 1.0},
	{"overall survival", 2.0},
	{"progression", 2.0},
	{"toxicit", 2.0},
	{"hematolog", 2.0},
	{"bias", 2.0},
	{"cochrane", 1.5},
	{"risk of bias", 2.0},
}

// ExtractReferences finds figure citations in text. Only the first citation
// of each figure number is kept, since that is usually the caption.
func ExtractReferences(text string) []Reference {
	seen := make(map[int]bool)
	var refs []Reference
	for _, m := range refRe.FindAllStringSubmatchIndex(text, -1) {
		num, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || seen[num] {
			continue
		}
		seen[num] = true
		refs = append(refs, Reference{
			Number:  num,
			Caption: strings.TrimSpace(text[m[4]:m[5]]),
			Offset:  m[0],
		})
	}
	return refs
}

// Match labels each figure description with the paper's own figure number.
//
// With no citations every image is labelled by page. When the number of
// images equals the number of cited figures they are paired in order.
// Otherwise pairs are assigned greedily by page proximity and caption
// overlap, and images left over are labelled by page.
func Match(text string, descs []document.FigureDescription) []document.MatchedFigure {
	if len(descs) == 0 {
		return nil
	}

	refs := ExtractReferences(text)
	if len(refs) == 0 {
		out := make([]document.MatchedFigure, 0, len(descs))
		for _, d := range descs {
			out = append(out, pageLabelled(d))
		}
		return out
	}

	images := make([]document.FigureDescription, len(descs))
	copy(images, descs)
	sort.SliceStable(images, func(i, j int) bool {
		if images[i].Page != images[j].Page {
			return images[i].Page < images[j].Page
		}
		return images[i].Index < images[j].Index
	})
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Number < refs[j].Number })

	if len(images) == len(refs) {
		out := make([]document.MatchedFigure, 0, len(images))
		for i, img := range images {
			out = append(out, labelled(img, refs[i]))
		}
		return out
	}

	estPages := estimatePages(text, refs, images)

	type pair struct {
		img, ref int
		score    float64
	}
	pairs := make([]pair, 0, len(images)*len(refs))
	for i, img := range images {
		for j, ref := range refs {
			pairs = append(pairs, pair{i, j, score(img, ref, estPages[j])})
		}
	}
	// Ties resolve toward earlier images, then lower figure numbers.
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].score > pairs[b].score })

	assigned := make(map[int]int, len(images))
	usedRefs := make(map[int]bool, len(refs))
	for _, p := range pairs {
		if _, ok := assigned[p.img]; ok || usedRefs[p.ref] {
			continue
		}
		assigned[p.img] = p.ref
		usedRefs[p.ref] = true
	}

	out := make([]document.MatchedFigure, 0, len(images))
	for i, img := range images {
		if j, ok := assigned[i]; ok {
			out = append(out, labelled(img, refs[j]))
		} else {
			out = append(out, pageLabelled(img))
		}
	}
	return out
}

// estimatePages places each citation on a page by its relative position in
// the text.
func estimatePages(text string, refs []Reference, images []document.FigureDescription) []int {
	total := max(len(text), 1)
	maxPage := 0
	for _, img := range images {
		maxPage = max(maxPage, img.Page)
	}
	out := make([]int, len(refs))
	for i, r := range refs {
		est := int(math.RoundToEven(float64(r.Offset) / float64(total) * float64(maxPage)))
		out[i] = max(1, est)
	}
	return out
}

func score(img document.FigureDescription, ref Reference, estPage int) float64 {
	var s float64
	switch dist := abs(img.Page - estPage); dist {
	case 0:
		s += 3.0
	case 1:
		s += 1.5
	default:
		s += 0.1
	}

	desc := strings.ToLower(img.Description)
	caption := strings.ToLower(ref.Caption)

	captionTerms := termSet(caption)
	if len(captionTerms) > 0 {
		descTerms := termSet(desc)
		overlap := 0
		for t := range captionTerms {
			if descTerms[t] {
				overlap++
			}
		}
		s += float64(overlap) * 0.5
	}

	for _, kb := range keywordBonus {
		if strings.Contains(caption, kb.keyword) && strings.Contains(desc, kb.keyword) {
			s += kb.bonus
		}
	}
	return s
}

func termSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range termRe.FindAllString(s, -1) {
		out[t] = true
	}
	return out
}

func labelled(img document.FigureDescription, ref Reference) document.MatchedFigure {
	return document.MatchedFigure{
		Label:       fmt.Sprintf("Fig. %d", ref.Number),
		Page:        img.Page,
		Description: img.Description,
	}
}

func pageLabelled(img document.FigureDescription) document.MatchedFigure {
	return document.MatchedFigure{
		Label:       fmt.Sprintf("Image from Page %d", img.Page),
		Page:        img.Page,
		Description: img.Description,
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
