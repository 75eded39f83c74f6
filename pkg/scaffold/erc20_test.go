package scaffold_test

import (
	"testing"

	"github.com/aretw0/crucible/pkg/scaffold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateERC20(t *testing.T) {
	src, err := scaffold.GenerateERC20(scaffold.Token{Name: "Gold Coin", Symbol: "GLD", Supply: "1000"})
	require.NoError(t, err)

	assert.Contains(t, src, "contract GoldCoinToken {")
	assert.Contains(t, src, `string public name = "Gold Coin";`)
	assert.Contains(t, src, `string public symbol = "GLD";`)
	assert.Contains(t, src, "totalSupply = 1000 * (10 ** uint256(decimals));")
	assert.Contains(t, src, "function transferFrom(address from, address to, uint256 value)")
}

func TestGenerateERC20_Validation(t *testing.T) {
	_, err := scaffold.GenerateERC20(scaffold.Token{Name: "Gold", Symbol: "", Supply: "1"})
	assert.ErrorIs(t, err, scaffold.ErrMissingField)

	_, err = scaffold.GenerateERC20(scaffold.Token{Name: "Gold", Symbol: "GLD", Supply: "1e6"})
	assert.ErrorIs(t, err, scaffold.ErrInvalidSupply)

	_, err = scaffold.GenerateERC20(scaffold.Token{Name: `Evil"; }`, Symbol: "EVL", Supply: "1"})
	assert.Error(t, err)
}

func TestTruffleLayout(t *testing.T) {
	p := scaffold.Truffle()
	assert.ElementsMatch(t, []string{"contracts", "test", "migrations"}, p.Dirs)
	assert.Len(t, scaffold.DefaultArtifacts(), 2)
	for _, a := range scaffold.DefaultArtifacts() {
		_, ok := p.Layout[a.Slot]
		assert.True(t, ok, "default artifact slot %s must have a path", a.Slot)
	}
}
