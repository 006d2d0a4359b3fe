// Package roles ships the built-in provisioning bundles: a Python toolchain,
// a container runtime, the data store, the consensus engine and the chain
// database service. Each role is a sequence of check/apply shell units; unit
// commands see the run variables as exported environment (HOME_PATH,
// OPERATION, STACK_TYPE).
package roles

import (
	"github.com/flotilla-dev/flotilla/internal/config"
	"github.com/flotilla-dev/flotilla/internal/registry"
	"github.com/flotilla-dev/flotilla/internal/role"
)

const (
	RolePythonEnv    = "pythonenv"
	RoleDockerEngine = "dockerengine"
	RoleMongoDB      = "mongodb"
	RoleTendermint   = "tendermint"
	RoleChainDB      = "chaindb"
)

// PythonEnv provisions the Python 3 toolchain used by local-stack hosts.
func PythonEnv() role.Role {
	return role.NewCommandRole(RolePythonEnv,
		role.Unit{
			Name:  "python3 toolchain",
			Check: "command -v python3 >/dev/null && command -v pip3 >/dev/null",
			Apply: "apt-get install -y python3 python3-pip python3-dev || yum install -y python3 python3-pip python3-devel",
		},
		role.Unit{
			Name:  "build tools",
			Check: "command -v gcc >/dev/null && command -v make >/dev/null",
			Apply: "apt-get install -y build-essential libffi-dev libssl-dev || yum groupinstall -y 'Development Tools'",
		},
	)
}

// DockerEngine installs and starts the container runtime for docker and
// cloud stacks.
func DockerEngine() role.Role {
	return role.NewCommandRole(RoleDockerEngine,
		role.Unit{
			Name:  "docker engine",
			Check: "command -v docker >/dev/null",
			Apply: "curl -fsSL https://get.docker.com | sh",
		},
		role.Unit{
			Name:  "docker daemon",
			Check: "docker info >/dev/null 2>&1",
			Apply: "systemctl enable --now docker || service docker start",
		},
	)
}

// MongoDB provisions the data store. Always deployed regardless of stack.
func MongoDB() role.Role {
	return role.NewCommandRole(RoleMongoDB,
		role.Unit{
			Name:  "mongodb server",
			Check: "command -v mongod >/dev/null",
			Apply: "apt-get install -y mongodb-org || yum install -y mongodb-org",
		},
		role.Unit{
			Name:  "data directory",
			Check: `test -d "$HOME_PATH/mongodb/data"`,
			Apply: `mkdir -p "$HOME_PATH/mongodb/data" "$HOME_PATH/mongodb/logs"`,
		},
		role.Unit{
			Name:  "mongod process",
			Check: "pgrep -x mongod >/dev/null",
			Apply: `mongod --fork --dbpath "$HOME_PATH/mongodb/data" --logpath "$HOME_PATH/mongodb/logs/mongod.log" --replSet rs0`,
		},
	)
}

// Tendermint provisions the consensus engine binary and its home directory.
func Tendermint() role.Role {
	return role.NewCommandRole(RoleTendermint,
		role.Unit{
			Name:  "tendermint binary",
			Check: "command -v tendermint >/dev/null",
			Apply: "curl -fsSL -o /tmp/tendermint.zip https://github.com/tendermint/tendermint/releases/download/v0.31.5/tendermint_v0.31.5_linux_amd64.zip && unzip -o /tmp/tendermint.zip -d /usr/local/bin && chmod +x /usr/local/bin/tendermint",
		},
		role.Unit{
			Name:  "tendermint home",
			Check: `test -f "$HOME_PATH/.tendermint/config/genesis.json"`,
			Apply: `tendermint init --home "$HOME_PATH/.tendermint"`,
		},
	)
}

// ChainDB provisions the chain database service. Its process unit honors the
// OPERATION variable: "start" converges toward a running daemon, "stop"
// toward no process at all, so both directions stay idempotent.
func ChainDB() role.Role {
	return role.NewCommandRole(RoleChainDB,
		role.Unit{
			Name:  "chaindb package",
			Check: "python3 -m pip show bigchaindb >/dev/null 2>&1",
			Apply: "python3 -m pip install bigchaindb",
		},
		role.Unit{
			Name:  "chaindb configuration",
			Check: `test -f "$HOME_PATH/.bigchaindb"`,
			Apply: `BIGCHAINDB_CONFIG_PATH="$HOME_PATH/.bigchaindb" bigchaindb -y configure localmongodb`,
		},
		role.Unit{
			Name:  "chaindb process",
			Check: `if [ "$OPERATION" = "start" ]; then pgrep -f 'bigchaindb start' >/dev/null; else ! pgrep -f 'bigchaindb start' >/dev/null; fi`,
			Apply: `if [ "$OPERATION" = "start" ]; then nohup bigchaindb start >"$HOME_PATH/chaindb.log" 2>&1 & sleep 1; else pkill -f 'bigchaindb start' || true; fi`,
		},
	)
}

// Builtin returns every built-in role.
func Builtin() []role.Role {
	return []role.Role{
		PythonEnv(),
		DockerEngine(),
		MongoDB(),
		Tendermint(),
		ChainDB(),
	}
}

// RegisterBuiltin adds the built-in roles to a role registry so config steps
// can reference them by name.
func RegisterBuiltin(reg *role.Registry) error {
	for _, r := range Builtin() {
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// DefaultSteps is the canonical convergence sequence used when a config
// declares no steps of its own: runtime roles guarded by stack_type, then
// the unconditional data store, consensus engine and chain database.
func DefaultSteps() []registry.Step {
	return []registry.Step{
		{
			ID:    RolePythonEnv,
			Name:  "Python environment",
			Order: 10,
			When:  registry.VarEquals(config.VarStackType, config.StackLocal),
			Role:  PythonEnv(),
		},
		{
			ID:    RoleDockerEngine,
			Name:  "Container runtime",
			Order: 20,
			When:  registry.VarIn(config.VarStackType, config.StackDocker, config.StackCloud),
			Role:  DockerEngine(),
		},
		{
			ID:    RoleMongoDB,
			Name:  "Data store",
			Order: 30,
			Role:  MongoDB(),
		},
		{
			ID:    RoleTendermint,
			Name:  "Consensus engine",
			Order: 40,
			Role:  Tendermint(),
		},
		{
			ID:    RoleChainDB,
			Name:  "Chain database",
			Order: 50,
			Role:  ChainDB(),
		},
	}
}
