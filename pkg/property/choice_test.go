package property

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissible(t *testing.T) {
	b := &Descriptor{Type: StringPtr("boolean"), Choice: StringPtr(`["yes"]`)}
	assert.Equal(t, ValueSet{Kind: SetBoolean, Values: []string{"true", "false"}}, Admissible(b))

	c := &Descriptor{Type: StringPtr("string"), Choice: StringPtr(`["MongoDB","MySQL"]`)}
	assert.Equal(t, ValueSet{Kind: SetChoice, Values: []string{"MongoDB", "MySQL"}}, Admissible(c))

	free := &Descriptor{Type: StringPtr("int")}
	assert.Equal(t, SetFree, Admissible(free).Kind)

	blank := &Descriptor{Type: StringPtr("int"), Choice: StringPtr("  ")}
	assert.Equal(t, SetFree, Admissible(blank).Kind)

	broken := &Descriptor{Type: StringPtr("int"), Choice: StringPtr("[1,")}
	assert.Equal(t, SetFree, Admissible(broken).Kind)
}

func TestParseChoices(t *testing.T) {
	got, err := ParseChoices(&Descriptor{Choice: StringPtr(`[ "a", 2, true ]`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "2", "true"}, got)

	got, err = ParseChoices(&Descriptor{})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseChoices(&Descriptor{Choice: StringPtr(`"a"`)})
	assert.Error(t, err)
}

func TestDefaultsAndAttention(t *testing.T) {
	ds := []*Descriptor{
		{Name: "unset", Default: StringValue("10")},
		{Name: "set", Value: StringValue("3"), Default: StringValue("10")},
		{Name: "emptied", Value: StringValue(""), Default: StringValue("10")},
	}
	ApplyDefaults(ds)
	assert.Equal(t, "10", ds[0].Value.String())
	assert.Equal(t, "3", ds[1].Value.String())
	assert.Equal(t, "", ds[2].Value.String())
	assert.Equal(t, "10", ds[2].EffectiveValue().String())

	host := &Descriptor{Name: "mongo.host", Group: "MongoDB", Default: StringValue("--")}
	need, msg := NeedsAttention(host)
	assert.True(t, need)
	assert.Equal(t, "* {MongoDB / mongo.host}: A value must be set.", msg)

	host.Value = StringValue("db.example.com")
	need, msg = NeedsAttention(host)
	assert.False(t, need)
	assert.Empty(t, msg)
}

func TestValueJSON(t *testing.T) {
	d := Descriptor{Name: "p", Value: NumberValue(1.5), Default: StringValue("x"), Min: BoolValue(true)}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"max"`)

	var back Descriptor
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Value.Equal(NumberValue(1.5)))
	assert.True(t, back.Default.Equal(StringValue("x")))
	assert.True(t, back.Min.Equal(BoolValue(true)))
	assert.False(t, back.Max.IsDefined())
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "10", NumberValue(10).String())
	assert.Equal(t, "0.25", NumberValue(0.25).String())
	assert.Equal(t, "1e+21", NumberValue(1e21).String())
	assert.Equal(t, "", Undefined.String())
	assert.Equal(t, "", NullValue().String())
	assert.Equal(t, "false", BoolValue(false).String())
	assert.False(t, StringValue("1").Equal(NumberValue(1)))
}
