package scaffold

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

var (
	ErrMissingField  = errors.New("all fields are required")
	ErrInvalidSupply = errors.New("total supply must be a number")
)

// Token describes an ERC20 contract to generate.
type Token struct {
	Name   string
	Symbol string
	Supply string
}

// ContractName is the Solidity identifier derived from the token name.
func (t Token) ContractName() string {
	return strings.ReplaceAll(t.Name, " ", "") + "Token"
}

// Validate checks that every field is present and the supply is all digits.
func (t Token) Validate() error {
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Symbol) == "" || t.Supply == "" {
		return ErrMissingField
	}
	for _, r := range t.Supply {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidSupply, t.Supply)
		}
	}
	if strings.ContainsAny(t.Name+t.Symbol, "\"\\\n") {
		return fmt.Errorf("%w: name and symbol must not contain quotes, backslashes or newlines", ErrMissingField)
	}
	return nil
}

// GenerateERC20 renders a fixed-supply ERC20 token contract with 18 decimals.
func GenerateERC20(t Token) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	if err := erc20Template.Execute(&b, t); err != nil {
		return "", fmt.Errorf("render erc20 template: %w", err)
	}
	return b.String(), nil
}

var erc20Template = template.Must(template.New("erc20").Parse(`// SPDX-License-Identifier: MIT
pragma solidity ^0.8.0;

contract {{.ContractName}} {
    string public name = "{{.Name}}";
    string public symbol = "{{.Symbol}}";
    uint8 public decimals = 18;
    uint256 public totalSupply;

    mapping(address => uint256) public balanceOf;
    mapping(address => mapping(address => uint256)) public allowance;

    event Transfer(address indexed from, address indexed to, uint256 value);
    event Approval(address indexed owner, address indexed spender, uint256 value);

    constructor() {
        totalSupply = {{.Supply}} * (10 ** uint256(decimals));
        balanceOf[msg.sender] = totalSupply;
        emit Transfer(address(0), msg.sender, totalSupply);
    }

    function transfer(address to, uint256 value) public returns (bool) {
        require(balanceOf[msg.sender] >= value, "Insufficient balance");
        balanceOf[msg.sender] -= value;
        balanceOf[to] += value;
        emit Transfer(msg.sender, to, value);
        return true;
    }

    function approve(address spender, uint256 value) public returns (bool) {
        allowance[msg.sender][spender] = value;
        emit Approval(msg.sender, spender, value);
        return true;
    }

    function transferFrom(address from, address to, uint256 value) public returns (bool) {
        require(balanceOf[from] >= value, "Insufficient balance");
        require(allowance[from][msg.sender] >= value, "Allowance exceeded");

        balanceOf[from] -= value;
        balanceOf[to] += value;
        allowance[from][msg.sender] -= value;

        emit Transfer(from, to, value);
        return true;
    }
}
`))
