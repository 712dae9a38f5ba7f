package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE flows (
				version_id UUID PRIMARY KEY,
				flow_id UUID NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT FALSE,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'published', 'archived')),
				flow_version VARCHAR(50) NOT NULL DEFAULT '0.0.0',
				interface_version VARCHAR(50) NOT NULL DEFAULT '0.0.0',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				owner_account_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				executed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_flows_flow_id ON flows(flow_id);
			CREATE INDEX idx_flows_status ON flows(status);
			CREATE INDEX idx_flows_owner ON flows(owner_account_id);
			CREATE INDEX idx_flows_created_at ON flows(created_at);

			-- At most one active version per flow group.
			CREATE UNIQUE INDEX idx_flows_one_active ON flows(flow_id) WHERE active;
		`,
		2: `
			CREATE TABLE action_templates (
				id UUID PRIMARY KEY,
				definition JSONB NOT NULL,
				team_visible BOOLEAN NOT NULL DEFAULT FALSE,
				marketplace_visible BOOLEAN NOT NULL DEFAULT FALSE,
				anonymous BOOLEAN NOT NULL DEFAULT FALSE,
				owner_account_id VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				CHECK (team_visible OR marketplace_visible)
			);

			CREATE INDEX idx_templates_owner ON action_templates(owner_account_id);
			CREATE INDEX idx_templates_marketplace ON action_templates(marketplace_visible);
		`,
		3: `
			CREATE TABLE tasks (
				id UUID PRIMARY KEY,
				flow_id UUID NOT NULL,
				flow_version_id UUID NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				session_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (
					status IN ('pending', 'waiting', 'running', 'completed', 'failed', 'canceled')
				),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				ended_at TIMESTAMP WITH TIME ZONE,
				result JSONB
			);

			CREATE INDEX idx_tasks_session ON tasks(session_id);
			CREATE INDEX idx_tasks_flow_created ON tasks(flow_id, created_at);
			CREATE INDEX idx_tasks_status ON tasks(status);
		`,
	}
}
