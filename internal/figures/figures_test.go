package figures

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/groundtruth/internal/document"
)

func TestExtractReferences_FirstOccurrenceWins(t *testing.T) {
	text := "Figure 1: CONSORT flow diagram.\nSee Fig. 1 for details.\nFig 2. Survival curves.\nFigure 2 again."
	refs := ExtractReferences(text)

	require.Len(t, refs, 2)
	assert.Equal(t, 1, refs[0].Number)
	assert.Equal(t, "CONSORT flow diagram.", refs[0].Caption)
	assert.Equal(t, 0, refs[0].Offset)
	assert.Equal(t, 2, refs[1].Number)
	assert.Equal(t, "Survival curves.", refs[1].Caption)
}

func TestMatch_NoReferencesLabelsByPage(t *testing.T) {
	descs := []document.FigureDescription{
		{Index: 0, Page: 2, Description: "chart"},
		{Index: 1, Page: 4, Description: "table"},
	}
	got := Match("No citations anywhere.", descs)

	require.Len(t, got, 2)
	assert.Equal(t, "Image from Page 2", got[0].Label)
	assert.Equal(t, "Image from Page 4", got[1].Label)
}

func TestMatch_EqualCountsPairInOrder(t *testing.T) {
	text := "Figure 2: Forest plot.\nFigure 1: PRISMA diagram."
	descs := []document.FigureDescription{
		{Index: 5, Page: 3, Description: "forest"},
		{Index: 1, Page: 1, Description: "prisma"},
	}
	got := Match(text, descs)

	require.Len(t, got, 2)
	assert.Equal(t, document.MatchedFigure{Label: "Fig. 1", Page: 1, Description: "prisma"}, got[0])
	assert.Equal(t, document.MatchedFigure{Label: "Fig. 2", Page: 3, Description: "forest"}, got[1])
}

func TestMatch_ScoredAssignmentWhenCountsDiffer(t *testing.T) {
	// Three citations, two images. The forest plot caption shares terms with
	// the second image; the PRISMA caption with the first.
	text := strings.Repeat("filler ", 10) +
		"Figure 1: PRISMA flow diagram of study selection.\n" +
		strings.Repeat("filler ", 200) +
		"Figure 2: Forest plot of overall survival hazard ratios.\n" +
		strings.Repeat("filler ", 200) +
		"Figure 3: Funnel plot.\n"
	descs := []document.FigureDescription{
		{Index: 0, Page: 1, Description: "A PRISMA flow diagram showing study selection and exclusions."},
		{Index: 1, Page: 3, Description: "A forest plot of overall survival hazard ratios across trials."},
	}
	got := Match(text, descs)

	require.Len(t, got, 2)
	assert.Equal(t, "Fig. 1", got[0].Label)
	assert.Equal(t, "Fig. 2", got[1].Label)
}

func TestMatch_LeftoverImagesLabelledByPage(t *testing.T) {
	text := "Figure 1: Kaplan-Meier curves for overall survival."
	descs := []document.FigureDescription{
		{Index: 0, Page: 1, Description: "Kaplan-Meier curves for overall survival by arm."},
		{Index: 1, Page: 5, Description: "Institution logo."},
	}
	got := Match(text, descs)

	require.Len(t, got, 2)
	labels := []string{got[0].Label, got[1].Label}
	assert.Contains(t, labels, "Fig. 1")
	assert.Contains(t, labels, "Image from Page 5")
}

func TestMatch_Deterministic(t *testing.T) {
	text := "Figure 1: a.\nFigure 2: b.\nFigure 3: c."
	descs := []document.FigureDescription{
		{Index: 0, Page: 1, Description: "x"},
		{Index: 1, Page: 1, Description: "y"},
	}
	first := Match(text, descs)
	for n := 0; n < 20; n++ {
		assert.Equal(t, first, Match(text, descs))
	}
}

func TestMatch_Empty(t *testing.T) {
	assert.Nil(t, Match("Figure 1: x", nil))
}

func img(index, page int, n int) document.Image {
	return document.Image{Index: index, Page: page, Width: 400, Height: 300, Data: bytes.Repeat([]byte{1}, n)}
}

func TestTermSet_UnicodeWords(t *testing.T) {
	terms := termSet("taux de réponse, évolution à 12 mois")
	assert.Equal(t, map[string]bool{"taux": true, "réponse": true, "évolution": true, "mois": true}, terms)
}

func TestFilterImages(t *testing.T) {
	images := []document.Image{
		img(0, 1, 5000),
		img(1, 1, 100),
		{Index: 2, Page: 2, Width: 20, Height: 400, Data: bytes.Repeat([]byte{1}, 5000)},
		{Index: 3, Page: 2, Width: 1300, Height: 100, Data: bytes.Repeat([]byte{1}, 5000)},
		{Index: 4, Page: 3, Data: bytes.Repeat([]byte{1}, 5000)},
		img(0, 4, 5000),
		{Index: 6, Page: 4},
	}
	got := FilterImages(images, DefaultFilter())

	var idx []int
	for _, g := range got {
		idx = append(idx, g.Index)
	}
	assert.Equal(t, []int{0, 4}, idx)
}

type fakeVision struct {
	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	fn       func(caption string) (string, error)
}

func (f *fakeVision) DescribeImage(ctx context.Context, image []byte, caption string) (string, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	f.inflight.Add(-1)
	return f.fn(caption)
}

func TestDescriber_FiltersRejectsAndFailures(t *testing.T) {
	v := &fakeVision{fn: func(caption string) (string, error) {
		switch caption {
		case "logo":
			return "NOT_A_FIGURE", nil
		case "broken":
			return "", errors.New("upstream 500")
		}
		return "description of " + caption, nil
	}}
	images := []document.Image{
		{Index: 3, Page: 2, Caption: "c", Data: bytes.Repeat([]byte{1}, 3000)},
		{Index: 1, Page: 1, Caption: "a", Data: bytes.Repeat([]byte{1}, 3000)},
		{Index: 2, Page: 1, Caption: "logo", Data: bytes.Repeat([]byte{1}, 3000)},
		{Index: 4, Page: 3, Caption: "broken", Data: bytes.Repeat([]byte{1}, 3000)},
		{Index: 5, Page: 3, Caption: "tiny", Data: []byte{1}},
	}
	d := NewDescriber(v, DefaultFilter(), 0, nil)
	descs, complete := d.Describe(context.Background(), images)

	assert.False(t, complete)
	assert.Equal(t, int32(4), v.calls.Load())
	require.Len(t, descs, 2)
	assert.Equal(t, 1, descs[0].Index)
	assert.Equal(t, "description of a", descs[0].Description)
	assert.Equal(t, 3, descs[1].Index)
}

func TestDescriber_BoundedConcurrency(t *testing.T) {
	v := &fakeVision{fn: func(caption string) (string, error) { return "ok", nil }}
	var images []document.Image
	for i := 0; i < 20; i++ {
		images = append(images, document.Image{Index: i, Page: 1, Data: bytes.Repeat([]byte{1}, 3000)})
	}
	d := NewDescriber(v, DefaultFilter(), 3, nil)
	descs, complete := d.Describe(context.Background(), images)

	assert.True(t, complete)
	assert.Len(t, descs, 20)
	assert.LessOrEqual(t, v.peak.Load(), int32(3))
}

func TestDescriber_NoImages(t *testing.T) {
	d := NewDescriber(&fakeVision{}, DefaultFilter(), 0, nil)
	descs, complete := d.Describe(context.Background(), nil)
	assert.Empty(t, descs)
	assert.True(t, complete)
}
