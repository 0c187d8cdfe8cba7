package sqlinline

const QSelectIntegrationCredential = `--sql 3c1f9b7e-52a4-4d0e-9e61-0b8f7a2c4d15
select token, properties
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3
with incoming as (
    select
        $1::text as provider,
        $2::text as token,
        coalesce($3::jsonb, '{}'::jsonb) as properties
)
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), (select provider from incoming), (select token from incoming), (select properties from incoming), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`

const QDeleteIntegrationToken = `--sql e4b7a0c2-9d36-4f58-8a1e-6c2d5f9b3a70
delete from integration_tokens
where provider = $1::text;
`

const QCreateIntegrationTokens = `--sql 0b5e2d18-7c4a-4e93-b1f6-2a9d8c3e5f47
create table if not exists integration_tokens (
    id uuid primary key default gen_random_uuid(),
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`
