// Package scaffold provides the file templates of a Truffle project: the
// build configuration, the deployment migration and a default contract with
// its test suite.
package scaffold

import (
	"path/filepath"

	"github.com/aretw0/crucible/pkg/domain"
)

// Directories are the folders every project root contains.
var Directories = []string{"contracts", "test", "migrations"}

// File is a scaffold file relative to the project root.
type File struct {
	Path    string
	Content string
}

// Project describes the files created when a workspace is initialized.
type Project struct {
	Dirs  []string
	Files []File
	// Layout maps artifact slots to their default paths.
	Layout map[domain.Slot]string
}

// Truffle returns the default Truffle project layout.
func Truffle() Project {
	return Project{
		Dirs: Directories,
		Files: []File{
			{Path: "truffle-config.js", Content: TruffleConfig},
			{Path: filepath.Join("migrations", "1_deploy_contracts.js"), Content: DeployMigration},
		},
		Layout: map[domain.Slot]string{
			domain.SlotContract:  filepath.Join("contracts", "SimpleStorage.sol"),
			domain.SlotTest:      filepath.Join("test", "test_storage.js"),
			domain.SlotMigration: filepath.Join("migrations", "1_deploy_contracts.js"),
			domain.SlotConfig:    "truffle-config.js",
		},
	}
}

// DefaultArtifacts returns the SimpleStorage contract and its test suite.
func DefaultArtifacts() []domain.StagedArtifact {
	return []domain.StagedArtifact{
		{Slot: domain.SlotContract, Content: []byte(SimpleStorageContract)},
		{Slot: domain.SlotTest, Content: []byte(SimpleStorageTest)},
	}
}

const TruffleConfig = `module.exports = {
  networks: {
    development: {
      host: "127.0.0.1",
      port: 9545,
      network_id: "*",
    },
  },
  compilers: {
    solc: {
      version: "0.8.0",
    }
  }
};
`

const DeployMigration = `const SimpleStorage = artifacts.require("SimpleStorage");

module.exports = function(deployer) {
  deployer.deploy(SimpleStorage);
};
`

const SimpleStorageContract = `// SPDX-License-Identifier: MIT
pragma solidity ^0.8.0;

contract SimpleStorage {
    uint256 public storedData;

    function set(uint256 x) public {
        storedData = x;
    }

    function get() public view returns (uint256) {
        return storedData;
    }
}
`

const SimpleStorageTest = `const SimpleStorage = artifacts.require("SimpleStorage");

contract("SimpleStorage", accounts => {
  it("should store the value 89.", async () => {
    const storage = await SimpleStorage.deployed();

    // Set value of 89
    await storage.set(89, { from: accounts[0] });

    // Get stored value
    const storedData = await storage.get.call();

    assert.equal(storedData, 89, "The value 89 was not stored.");
  });
});
`
