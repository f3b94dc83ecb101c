package proplist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateModes(t *testing.T) {
	base := func() Proplist {
		return Proplist{DeviceClass: "abstract", DeviceDescription: "Tunnel"}
	}
	other := Proplist{DeviceDescription: "Remote", MediaName: "music"}

	p := base()
	p.Update(UpdateMerge, other)
	assert.Equal(t, Proplist{DeviceClass: "abstract", DeviceDescription: "Tunnel", MediaName: "music"}, p)

	p = base()
	p.Update(UpdateReplace, other)
	assert.Equal(t, Proplist{DeviceClass: "abstract", DeviceDescription: "Remote", MediaName: "music"}, p)

	p = base()
	p.Update(UpdateSet, other)
	assert.Equal(t, other, p)
}

func TestSets(t *testing.T) {
	p := New()
	require.NoError(t, p.Sets(DeviceClass, "abstract"))
	assert.Error(t, p.Sets("bad key", "x"))
	assert.Error(t, p.Sets("a=b", "x"))
	assert.Error(t, p.Sets("", "x"))
	assert.Equal(t, "abstract", p.Gets(DeviceClass))
}

func TestString(t *testing.T) {
	p := Proplist{DeviceDescription: `say "hi"`, DeviceClass: "abstract"}
	assert.Equal(t, `device.class="abstract" device.description="say \"hi\""`, p.String())
}
