package sqlinline

// Provider API keys persisted by cmd/providerkey. Environment variables take
// precedence over these rows.

const QSelectIntegrationToken = `--sql 3f0b7c1e-59a4-4d8e-9a51-2c7e0f6b9d14
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql c41d2a87-0e6f-4b39-8f12-7d5a9e3c6b20
insert into integration_tokens (provider, token, properties)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`

const QDeleteIntegrationToken = `--sql 9e27b6d3-1c84-4f0a-b5e9-6a3d2f8c0e71
delete from integration_tokens
where provider = $1::text;
`

const QListIntegrationTokens = `--sql 5b8c3e19-7d20-4a6f-9c14-e0f7a2b5d836
select provider, updated_at
from integration_tokens
order by provider;
`
